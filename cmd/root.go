package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "coverdesk",
	Short: "Certificate of Insurance compliance tracker",
	Long:  "Tracks vendor and tenant insurance compliance: extracts uploaded COIs with Claude, evaluates them against requirement templates, and flags gaps before they become claims.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
