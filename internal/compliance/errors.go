// Package compliance implements the COI compliance engine: requirement
// resolution, coverage matching, expiration checking, evaluation, and
// insight text generation. Every function in this package is pure and
// synchronous; callers may run evaluations concurrently across entities
// without coordination.
package compliance

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrNoTemplate is returned by ResolveTemplate when no candidate template
// exists for the entity's category. The resolver never fabricates
// requirements; the caller decides how to recover.
var ErrNoTemplate = eris.New("compliance: no template for entity category")

// ErrMissingExpiration is returned when an expiration check is invoked
// without a usable expiration date. A certificate with no expiration date
// is malformed input, not a non-expiring certificate.
var ErrMissingExpiration = eris.New("compliance: missing expiration date")

// ValidationError reports malformed input shape, as opposed to missing
// coverage data (which is modeled as a gap, not an error).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("compliance: invalid %s: %s", e.Field, e.Reason)
}
