// Package model defines the domain types shared across the COI tracking
// service: requirement templates, extracted certificates, and compliance
// results.
package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// CoverageType identifies a named insurance coverage category. Matching
// between required and actual coverages is always an exact key match on
// this value; there is no fuzzy matching.
type CoverageType string

const (
	CoverageGeneralLiability      CoverageType = "general_liability"
	CoverageAutoLiability         CoverageType = "auto_liability"
	CoverageWorkersComp           CoverageType = "workers_comp"
	CoverageUmbrella              CoverageType = "umbrella"
	CoverageProfessionalLiability CoverageType = "professional_liability"
	CoveragePollutionLiability    CoverageType = "pollution_liability"
)

// Display returns a human-readable form of the coverage type
// ("general_liability" becomes "general liability").
func (c CoverageType) Display() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Money is a monetary amount in whole US dollars. The extraction boundary
// rounds any fractional amounts to whole dollars; everything downstream of
// it compares and stores whole-dollar values only.
type Money int64

// RequiredAmount is a required coverage minimum: either a whole-dollar
// amount or the "Statutory" sentinel used for coverages (workers' comp)
// whose minimum is set by law rather than a dollar figure.
type RequiredAmount struct {
	Statutory bool
	Amount    Money
}

// Dollars returns a RequiredAmount for a fixed dollar minimum.
func Dollars(amount Money) RequiredAmount {
	return RequiredAmount{Amount: amount}
}

// StatutoryAmount returns the statutory sentinel.
func StatutoryAmount() RequiredAmount {
	return RequiredAmount{Statutory: true}
}

// statutoryToken is the wire form of the statutory sentinel.
const statutoryToken = "Statutory"

// MarshalJSON encodes the amount as a JSON number, or the string
// "Statutory" for statutory minimums.
func (r RequiredAmount) MarshalJSON() ([]byte, error) {
	if r.Statutory {
		return json.Marshal(statutoryToken)
	}
	return json.Marshal(int64(r.Amount))
}

// UnmarshalJSON accepts a JSON number or the string "Statutory"
// (case-insensitive). Anything else is rejected.
func (r *RequiredAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.EqualFold(strings.TrimSpace(s), statutoryToken) {
			*r = RequiredAmount{Statutory: true}
			return nil
		}
		return eris.Errorf("model: required amount must be a number or %q, got %q", statutoryToken, s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "model: parse required amount")
	}
	*r = RequiredAmount{Amount: Money(n)}
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for template seed files.
func (r *RequiredAmount) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		if strings.EqualFold(strings.TrimSpace(s), statutoryToken) {
			*r = RequiredAmount{Statutory: true}
			return nil
		}
		return eris.Errorf("model: required amount must be a number or %q, got %q", statutoryToken, s)
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return eris.Wrap(err, "model: parse required amount")
	}
	*r = RequiredAmount{Amount: Money(n)}
	return nil
}

// CoverageRequirement is one required coverage line within a template.
type CoverageRequirement struct {
	Coverage     CoverageType   `json:"coverage" yaml:"coverage"`
	MinAmount    RequiredAmount `json:"min_amount" yaml:"min_amount"`
	MinAggregate *Money         `json:"min_aggregate,omitempty" yaml:"min_aggregate,omitempty"`
	Endorsements []string       `json:"endorsements,omitempty" yaml:"endorsements,omitempty"`
	// Required distinguishes mandatory lines from advisory ones. Advisory
	// lines are evaluated and reported but never affect the overall status.
	Required bool `json:"required" yaml:"required"`
}
