package model

import "time"

// ExtractedCoverage is one coverage line as read off a certificate by the
// extraction service. Every field except the coverage type may be absent;
// the evaluator treats absence as a gap, never as an error.
type ExtractedCoverage struct {
	Coverage     CoverageType `json:"coverage"`
	Amount       *Money       `json:"amount,omitempty"`
	Aggregate    *Money       `json:"aggregate,omitempty"`
	Endorsements []string     `json:"endorsements,omitempty"`
	// Coverage-specific policy dates. When unset, the certificate-level
	// dates apply.
	EffectiveDate  *Date `json:"effective_date,omitempty"`
	ExpirationDate *Date `json:"expiration_date,omitempty"`
}

// Certificate is the extracted content of one Certificate of Insurance.
// It is untrusted input: produced by the extraction collaborator from
// whatever the entity uploaded, with any field possibly missing.
type Certificate struct {
	ID          string              `json:"id,omitempty"`
	EntityID    string              `json:"entity_id,omitempty"`
	InsuredName string              `json:"insured_name,omitempty"`
	Producer    string              `json:"producer,omitempty"`
	Coverages   []ExtractedCoverage `json:"coverages"`
	// Certificate-level policy period, used for any coverage line that
	// carries no dates of its own.
	EffectiveDate  *Date     `json:"effective_date,omitempty"`
	ExpirationDate *Date     `json:"expiration_date,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at,omitempty"`
}

// Coverage returns the coverage line for the given type, or nil if the
// certificate has no entry for it. Lookup is an exact key match.
func (c Certificate) Coverage(t CoverageType) *ExtractedCoverage {
	for i := range c.Coverages {
		if c.Coverages[i].Coverage == t {
			return &c.Coverages[i]
		}
	}
	return nil
}
