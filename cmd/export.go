package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/report"
	"github.com/coverdesk/coverdesk/internal/store"
)

var (
	exportOutput   string
	exportOrg      string
	exportCategory string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export compliance standing to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := report.Build(ctx, st, store.EntityFilter{
			OrgID:    exportOrg,
			Category: model.EntityCategory(exportCategory),
		})
		if err != nil {
			return err
		}

		if err := report.WriteWorkbook(exportOutput, rows); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("output", exportOutput),
			zap.Int("entities", len(rows)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "compliance.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportOrg, "org", "", "filter by organization ID")
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "filter by category (vendor or tenant)")
	rootCmd.AddCommand(exportCmd)
}
