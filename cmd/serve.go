package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/extraction"
	"github.com/coverdesk/coverdesk/internal/notify"
	"github.com/coverdesk/coverdesk/internal/server"
	"github.com/coverdesk/coverdesk/pkg/anthropic"
)

var (
	servePort      int
	serveNoRecheck bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background re-check loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := initService(st)

		var extractor server.DocumentExtractor
		if cfg.Anthropic.Key != "" {
			extractor = extraction.New(anthropic.NewClient(cfg.Anthropic.Key), extraction.Config{
				Model:             cfg.Anthropic.Model,
				MaxTokens:         cfg.Anthropic.MaxTokens,
				RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
			})
		} else {
			zap.L().Warn("no Anthropic API key configured; document extraction disabled")
		}

		if !serveNoRecheck {
			alerter := notify.NewAlerter(cfg.Notify.WebhookURL)
			checker := notify.NewChecker(st, svc, alerter,
				time.Duration(cfg.Notify.CheckIntervalHours)*time.Hour,
				cfg.Notify.RecheckConcurrency,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(server.Config{
			Port:           port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}, st, svc, extractor)

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoRecheck, "no-recheck", false, "disable the background re-check loop")
	rootCmd.AddCommand(serveCmd)
}
