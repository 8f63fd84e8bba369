package compliance

import (
	"github.com/coverdesk/coverdesk/internal/model"
)

// templateKey is the composite key the shadowing rule operates on. An
// org-owned template shadows the system default sharing its key.
type templateKey struct {
	Category  model.EntityCategory
	RiskLevel model.RiskLevel
}

// ResolveTemplate selects the effective requirement template for an
// entity.
//
// An entity with an explicitly assigned template is resolved upstream and
// never reaches the candidate logic: the assigned template is returned
// verbatim when present in candidates, and the first matching ID wins.
//
// Otherwise candidates are grouped by (category, risk level). Within a
// group an organization-owned template beats the system default; when
// several org templates share a key the most recently created wins, so
// resolution is deterministic regardless of candidate order. An entity
// whose exact risk level has no group falls back to the nearest group of
// its category, preferring lower risk levels over higher so an entity is
// never held to a stricter set than its classification.
//
// ResolveTemplate returns ErrNoTemplate when no candidate exists for the
// entity's category at all.
func ResolveTemplate(entity model.Entity, candidates []model.Template) (*model.Template, error) {
	if entity.TemplateID != "" {
		for i := range candidates {
			if candidates[i].ID == entity.TemplateID {
				return &candidates[i], nil
			}
		}
		// Assigned but not supplied: the caller passed an incomplete
		// candidate set.
		return nil, &ValidationError{Field: "template_id", Reason: "assigned template not in candidate set"}
	}

	groups := make(map[templateKey]*model.Template)
	categorySeen := false
	for i := range candidates {
		c := &candidates[i]
		if c.Category != entity.Category {
			continue
		}
		categorySeen = true
		key := templateKey{Category: c.Category, RiskLevel: c.RiskLevel}
		best, ok := groups[key]
		if !ok || prefer(c, best) {
			groups[key] = c
		}
	}
	if !categorySeen {
		return nil, ErrNoTemplate
	}

	if t, ok := groups[templateKey{Category: entity.Category, RiskLevel: entity.RiskLevel}]; ok {
		return t, nil
	}
	for _, risk := range []model.RiskLevel{model.RiskLow, model.RiskModerate, model.RiskHigh} {
		if t, ok := groups[templateKey{Category: entity.Category, RiskLevel: risk}]; ok {
			return t, nil
		}
	}
	// Candidates exist for the category but under unknown risk labels;
	// treat as unresolvable rather than picking one arbitrarily.
	return nil, ErrNoTemplate
}

// prefer reports whether a should replace b as a group's effective
// template: org-owned over system default, then newest creation time,
// then lowest ID as a final stable tie-break.
func prefer(a, b *model.Template) bool {
	if a.IsSystemDefault() != b.IsSystemDefault() {
		return !a.IsSystemDefault()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
