package main

import (
	"github.com/spf13/cobra"

	"github.com/coverdesk/coverdesk/internal/notify"
)

var (
	recheckConcurrency int
	recheckAlert       bool
)

var recheckCmd = &cobra.Command{
	Use:   "recheck",
	Short: "Re-evaluate every entity and persist fresh result snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		concurrency := recheckConcurrency
		if concurrency == 0 {
			concurrency = cfg.Notify.RecheckConcurrency
		}

		summary, err := notify.Recheck(ctx, st, initService(st), concurrency)
		if err != nil {
			return err
		}

		if recheckAlert {
			alerter := notify.NewAlerter(cfg.Notify.WebhookURL)
			alerter.SendAlerts(ctx, alerter.Evaluate(summary))
		}

		return nil
	},
}

func init() {
	recheckCmd.Flags().IntVar(&recheckConcurrency, "concurrency", 0, "parallel evaluations (overrides config)")
	recheckCmd.Flags().BoolVar(&recheckAlert, "alert", false, "send webhook alerts for findings")
	rootCmd.AddCommand(recheckCmd)
}
