package model

import "time"

// EntityCategory classifies the counterparty a template applies to.
type EntityCategory string

const (
	CategoryVendor EntityCategory = "vendor"
	CategoryTenant EntityCategory = "tenant"
)

// RiskLevel classifies templates by the exposure of the work or tenancy;
// higher risk selects a stricter default requirement set.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Template is an ordered set of coverage requirements. Templates owned by
// an organization shadow the system defaults sharing their category and
// risk level; entities reference templates, they never copy them.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// OrgID is empty for system-default templates.
	OrgID     string                `json:"org_id,omitempty"`
	Category  EntityCategory        `json:"category"`
	RiskLevel RiskLevel             `json:"risk_level"`
	Coverages []CoverageRequirement `json:"coverages"`
	CreatedAt time.Time             `json:"created_at"`
}

// IsSystemDefault reports whether this template is a system default rather
// than an organization-owned one.
func (t Template) IsSystemDefault() bool { return t.OrgID == "" }

// Entity is a vendor or tenant whose insurance is tracked.
type Entity struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"org_id"`
	Name      string         `json:"name"`
	Category  EntityCategory `json:"category"`
	RiskLevel RiskLevel      `json:"risk_level"`
	// TemplateID, when set, pins the entity to an explicit template and
	// bypasses default resolution entirely.
	TemplateID   string    `json:"template_id,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
