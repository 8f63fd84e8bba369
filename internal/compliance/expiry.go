package compliance

import "github.com/coverdesk/coverdesk/internal/model"

// ExpiryState is the outcome of a date check relative to an evaluation day.
type ExpiryState string

const (
	ExpiryNotYetEffective ExpiryState = "not_yet_effective"
	ExpiryCurrent         ExpiryState = "current"
	ExpiryExpiringSoon    ExpiryState = "expiring_soon"
	ExpiryExpired         ExpiryState = "expired"
)

// DefaultWarnWindowDays is the expiring-soon window applied when a caller
// passes a non-positive window.
const DefaultWarnWindowDays = 30

// CheckExpiration classifies a policy period against the evaluation date.
// Comparisons are whole-day: a certificate expiring exactly on asOf is
// still current that day and expired the day after. A nil or zero
// expiration date is an ErrMissingExpiration error, never treated as
// non-expiring.
func CheckExpiration(effective, expiration *model.Date, asOf model.Date, warnWindowDays int) (ExpiryState, error) {
	if expiration == nil || expiration.IsZero() {
		return "", ErrMissingExpiration
	}
	if warnWindowDays <= 0 {
		warnWindowDays = DefaultWarnWindowDays
	}

	if effective != nil && !effective.IsZero() && asOf.Before(*effective) {
		return ExpiryNotYetEffective, nil
	}
	if asOf.After(*expiration) {
		return ExpiryExpired, nil
	}
	if asOf.DaysUntil(*expiration) <= warnWindowDays {
		return ExpiryExpiringSoon, nil
	}
	return ExpiryCurrent, nil
}
