package compliance

import (
	"strings"

	"github.com/coverdesk/coverdesk/internal/model"
)

// MatchCoverage compares one extracted coverage line against its
// requirement and returns every gap found, in a fixed order: amount,
// aggregate, then each missing endorsement in requirement order. The
// checks are independent; an inadequate amount does not suppress an
// aggregate or endorsement gap.
//
// Statutory minimums have no meaningful dollar comparison: the coverage
// being present on the certificate satisfies the amount check.
func MatchCoverage(req model.CoverageRequirement, actual model.ExtractedCoverage) []model.Gap {
	var gaps []model.Gap

	if !req.MinAmount.Statutory {
		if actual.Amount == nil || *actual.Amount < req.MinAmount.Amount {
			gaps = append(gaps, model.Gap{
				Coverage: req.Coverage,
				Reason:   model.GapAmountBelowMinimum,
				Required: formatRequired(req.MinAmount),
				Actual:   formatActual(actual.Amount),
			})
		}
	}

	if req.MinAggregate != nil {
		if actual.Aggregate == nil || *actual.Aggregate < *req.MinAggregate {
			gaps = append(gaps, model.Gap{
				Coverage: req.Coverage,
				Reason:   model.GapAggregateBelowMinimum,
				Required: formatMoney(*req.MinAggregate),
				Actual:   formatActual(actual.Aggregate),
			})
		}
	}

	if len(req.Endorsements) > 0 {
		present := make(map[string]bool, len(actual.Endorsements))
		for _, e := range actual.Endorsements {
			present[normalizeEndorsement(e)] = true
		}
		for _, want := range req.Endorsements {
			if !present[normalizeEndorsement(want)] {
				gaps = append(gaps, model.Gap{
					Coverage: req.Coverage,
					Reason:   model.GapEndorsementMissing,
					Required: want,
					Actual:   "not present",
				})
			}
		}
	}

	return gaps
}

// normalizeEndorsement trims and lowercases for case-insensitive set
// membership.
func normalizeEndorsement(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatActual(m *model.Money) string {
	if m == nil {
		return "none"
	}
	return formatMoney(*m)
}

// ValidateRequirement checks a requirement line for malformed shape.
// Missing certificate data is never a validation concern; this guards the
// template side only.
func ValidateRequirement(req model.CoverageRequirement) error {
	if strings.TrimSpace(string(req.Coverage)) == "" {
		return &ValidationError{Field: "coverage", Reason: "coverage type is empty"}
	}
	if !req.MinAmount.Statutory && req.MinAmount.Amount < 0 {
		return &ValidationError{Field: "min_amount", Reason: "minimum amount is negative"}
	}
	if req.MinAggregate != nil && *req.MinAggregate < 0 {
		return &ValidationError{Field: "min_aggregate", Reason: "minimum aggregate is negative"}
	}
	for _, e := range req.Endorsements {
		if strings.TrimSpace(e) == "" {
			return &ValidationError{Field: "endorsements", Reason: "empty endorsement name"}
		}
	}
	return nil
}
