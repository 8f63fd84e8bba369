package compliance

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/coverdesk/coverdesk/internal/model"
)

// Evaluate runs every required coverage line against the extracted
// certificate and produces an immutable result. It is deterministic and
// order-stable: gaps appear in template order, and within one coverage in
// the order amount, aggregate, endorsements, expiration.
//
// A coverage absent from the certificate yields exactly one missing gap
// and no further checks for that line. Expiration uses the coverage line's
// own dates when present, falling back to the certificate-level dates. An
// expired or not-yet-effective line yields an expired gap; any expired gap
// on a mandatory line forces the overall status to expired regardless of
// other findings. Coverages inside the warning window are recorded on the
// result's ExpiringSoon list only; they produce no gap and never move a
// compliant result off compliant.
//
// Malformed requirements surface as *ValidationError and a line that ends
// up with no usable expiration date surfaces ErrMissingExpiration; both
// abort the evaluation. Missing coverage data never does.
func Evaluate(reqs []model.CoverageRequirement, cert model.Certificate, asOf model.Date, warnWindowDays int) (model.ComplianceResult, error) {
	if warnWindowDays <= 0 {
		warnWindowDays = DefaultWarnWindowDays
	}
	result := model.ComplianceResult{
		EntityID:       cert.EntityID,
		AsOf:           asOf,
		WarnWindowDays: warnWindowDays,
		EvaluatedAt:    time.Now().UTC(),
	}

	for _, req := range reqs {
		if err := ValidateRequirement(req); err != nil {
			return model.ComplianceResult{}, err
		}

		actual := cert.Coverage(req.Coverage)
		if actual == nil {
			result.Gaps = append(result.Gaps, model.Gap{
				Coverage: req.Coverage,
				Reason:   model.GapMissing,
				Required: formatRequired(req.MinAmount),
				Actual:   "not on certificate",
				Advisory: !req.Required,
			})
			continue
		}

		gaps := MatchCoverage(req, *actual)

		effective := actual.EffectiveDate
		if effective == nil {
			effective = cert.EffectiveDate
		}
		expiration := actual.ExpirationDate
		if expiration == nil {
			expiration = cert.ExpirationDate
		}
		state, err := CheckExpiration(effective, expiration, asOf, warnWindowDays)
		if err != nil {
			return model.ComplianceResult{}, eris.Wrapf(err, "coverage %s", req.Coverage)
		}
		switch state {
		case ExpiryExpired:
			gaps = append(gaps, model.Gap{
				Coverage: req.Coverage,
				Reason:   model.GapExpired,
				Required: "current as of " + asOf.String(),
				Actual:   "expired " + expiration.String(),
			})
		case ExpiryNotYetEffective:
			gaps = append(gaps, model.Gap{
				Coverage: req.Coverage,
				Reason:   model.GapExpired,
				Required: "effective by " + asOf.String(),
				Actual:   "not effective until " + effective.String(),
			})
		case ExpiryExpiringSoon:
			result.ExpiringSoon = append(result.ExpiringSoon, req.Coverage)
		}

		if !req.Required {
			for i := range gaps {
				gaps[i].Advisory = true
			}
		}
		result.Gaps = append(result.Gaps, gaps...)
	}

	result.OverallStatus = deriveStatus(result.Gaps)
	return result, nil
}

// deriveStatus folds the gap list into one verdict. Expiration dominates:
// a financially adequate but expired certificate is expired, never merely
// non-compliant. Advisory gaps are excluded.
func deriveStatus(gaps []model.Gap) model.OverallStatus {
	status := model.StatusCompliant
	for _, g := range gaps {
		if g.Advisory {
			continue
		}
		if g.Reason == model.GapExpired {
			return model.StatusExpired
		}
		status = model.StatusNonCompliant
	}
	return status
}
