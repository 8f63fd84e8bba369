package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/store"
)

// Checker runs periodic compliance re-checks in the background.
type Checker struct {
	store       store.Store
	service     *compliance.Service
	alerter     *Alerter
	interval    time.Duration
	concurrency int
}

// NewChecker creates a background re-check loop.
func NewChecker(st store.Store, svc *compliance.Service, alerter *Alerter, interval time.Duration, concurrency int) *Checker {
	return &Checker{
		store:       st,
		service:     svc,
		alerter:     alerter,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Run starts the periodic re-check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	log := zap.L().With(zap.String("component", "notify.checker"))
	log.Info("starting re-check loop",
		zap.Duration("interval", interval),
		zap.Int("concurrency", c.concurrency),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("re-check loop stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	summary, err := Recheck(ctx, c.store, c.service, c.concurrency)
	if err != nil {
		log.Error("re-check pass failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(summary)
	if len(alerts) == 0 {
		log.Debug("no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
