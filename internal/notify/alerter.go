package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertExpiredCertificates AlertType = "expired_certificates"
	AlertComplianceGaps      AlertType = "compliance_gaps"
	AlertExpiringSoon        AlertType = "expiring_soon"
	AlertRecheckFailures     AlertType = "recheck_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a re-check Summary and sends alerts via webhook when
// anything needs attention.
type Alerter struct {
	webhookURL string
	client     *http.Client
}

// NewAlerter creates a new Alerter posting to the given webhook URL. An
// empty URL disables delivery; Evaluate still works for callers that only
// want the alert list.
func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate inspects the summary and returns any alerts.
func (a *Alerter) Evaluate(summary *Summary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if summary.Expired > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertExpiredCertificates,
			Severity: "high",
			Message: fmt.Sprintf("%d entit%s with expired certificates",
				summary.Expired, plural(summary.Expired, "y", "ies")),
			Details: map[string]any{
				"expired": summary.Expired,
				"total":   summary.Total,
			},
			Timestamp: now,
		})
	}

	if summary.NonCompliant > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertComplianceGaps,
			Severity: "medium",
			Message: fmt.Sprintf("%d entit%s with coverage gaps",
				summary.NonCompliant, plural(summary.NonCompliant, "y", "ies")),
			Details: map[string]any{
				"non_compliant": summary.NonCompliant,
				"total":         summary.Total,
			},
			Timestamp: now,
		})
	}

	if summary.ExpiringSoon > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertExpiringSoon,
			Severity: "low",
			Message: fmt.Sprintf("%d entit%s with coverage expiring soon",
				summary.ExpiringSoon, plural(summary.ExpiringSoon, "y", "ies")),
			Details: map[string]any{
				"expiring_soon": summary.ExpiringSoon,
				"total":         summary.Total,
			},
			Timestamp: now,
		})
	}

	if summary.Failed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRecheckFailures,
			Severity: "high",
			Message: fmt.Sprintf("%d of %d entities failed re-check",
				summary.Failed, summary.Total),
			Details: map[string]any{
				"failed": summary.Failed,
				"total":  summary.Total,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.webhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("failed to send alert",
				zap.String("component", "notify"),
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("alert sent",
			zap.String("component", "notify"),
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "notify: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}
