package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
)

var evaluateAsOf string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <entity-id>",
	Short: "Evaluate one entity's compliance and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entityID := args[0]

		asOf := model.Today()
		if evaluateAsOf != "" {
			parsed, err := model.ParseDate(evaluateAsOf)
			if err != nil {
				return err
			}
			asOf = parsed
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := initService(st).EvaluateEntity(ctx, entityID, asOf)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		fmt.Fprintln(cmd.OutOrStdout(), compliance.GenerateInsight(*result))
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateAsOf, "as-of", "", "evaluation date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(evaluateCmd)
}
