package model

import "time"

// OverallStatus is the single verdict for an evaluation.
type OverallStatus string

const (
	StatusCompliant    OverallStatus = "compliant"
	StatusNonCompliant OverallStatus = "non_compliant"
	StatusExpired      OverallStatus = "expired"
)

// GapReason classifies a single detected deficiency.
type GapReason string

const (
	GapMissing               GapReason = "missing"
	GapAmountBelowMinimum    GapReason = "amount_below_minimum"
	GapAggregateBelowMinimum GapReason = "aggregate_below_minimum"
	GapEndorsementMissing    GapReason = "endorsement_missing"
	GapExpired               GapReason = "expired"
	// GapExpiringSoon exists in the taxonomy but is never emitted into a
	// gap list: expiring-soon is a warning surfaced through insights, not
	// a compliance failure.
	GapExpiringSoon GapReason = "expiring_soon"
)

// Gap is one detected compliance deficiency for one coverage line.
type Gap struct {
	Coverage CoverageType `json:"coverage"`
	Reason   GapReason    `json:"reason"`
	Required string       `json:"required,omitempty"`
	Actual   string       `json:"actual,omitempty"`
	// Advisory gaps come from non-required template lines; they are
	// reported but excluded from the overall status.
	Advisory bool `json:"advisory,omitempty"`
}

// ComplianceResult is the immutable outcome of one evaluation. Re-checks
// always produce a fresh result; a stored result is never updated in place.
type ComplianceResult struct {
	ID            string        `json:"id,omitempty"`
	EntityID      string        `json:"entity_id,omitempty"`
	TemplateID    string        `json:"template_id,omitempty"`
	OverallStatus OverallStatus `json:"overall_status"`
	Gaps          []Gap         `json:"gaps"`
	// ExpiringSoon lists coverages inside the warning window. Informational
	// only: it never produces gaps and never degrades a compliant status.
	ExpiringSoon   []CoverageType `json:"expiring_soon,omitempty"`
	AsOf           Date           `json:"as_of"`
	WarnWindowDays int            `json:"warn_window_days"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// HasReason reports whether any non-advisory gap carries the given reason.
func (r ComplianceResult) HasReason(reason GapReason) bool {
	for _, g := range r.Gaps {
		if !g.Advisory && g.Reason == reason {
			return true
		}
	}
	return false
}
