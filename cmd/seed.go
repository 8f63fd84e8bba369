package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load system-default requirement templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := seedFile
		if path == "" {
			path = cfg.Seed.Path
		}

		templates, err := seed.ParseFile(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := seed.Apply(ctx, st, templates)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.String("file", path),
			zap.Int("templates", n),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed file path (overrides config)")
	rootCmd.AddCommand(seedCmd)
}
