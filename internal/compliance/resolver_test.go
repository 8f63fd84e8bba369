package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/coverdesk/internal/model"
)

func tmpl(id, orgID string, cat model.EntityCategory, risk model.RiskLevel, created time.Time) model.Template {
	return model.Template{
		ID:        id,
		Name:      id,
		OrgID:     orgID,
		Category:  cat,
		RiskLevel: risk,
		CreatedAt: created,
		Coverages: []model.CoverageRequirement{
			{Coverage: model.CoverageGeneralLiability, MinAmount: model.Dollars(1_000_000), Required: true},
		},
	}
}

func TestResolveTemplate_ExplicitAssignmentWinsVerbatim(t *testing.T) {
	now := time.Now()
	entity := model.Entity{Category: model.CategoryVendor, RiskLevel: model.RiskLow, TemplateID: "custom"}
	candidates := []model.Template{
		tmpl("default", "", model.CategoryVendor, model.RiskLow, now),
		tmpl("custom", "org-1", model.CategoryTenant, model.RiskHigh, now),
	}

	// The assigned template is used even though its category doesn't match
	// the entity; assignment was resolved upstream.
	got, err := ResolveTemplate(entity, candidates)
	require.NoError(t, err)
	assert.Equal(t, "custom", got.ID)
}

func TestResolveTemplate_AssignedTemplateAbsent(t *testing.T) {
	entity := model.Entity{Category: model.CategoryVendor, TemplateID: "ghost"}
	_, err := ResolveTemplate(entity, []model.Template{
		tmpl("default", "", model.CategoryVendor, model.RiskLow, time.Now()),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestResolveTemplate_OrgShadowsSystemDefault(t *testing.T) {
	now := time.Now()
	entity := model.Entity{Category: model.CategoryVendor, RiskLevel: model.RiskModerate}
	candidates := []model.Template{
		tmpl("sys-moderate", "", model.CategoryVendor, model.RiskModerate, now.Add(-time.Hour)),
		tmpl("org-moderate", "org-1", model.CategoryVendor, model.RiskModerate, now.Add(-24*time.Hour)),
	}

	got, err := ResolveTemplate(entity, candidates)
	require.NoError(t, err)
	assert.Equal(t, "org-moderate", got.ID, "org template shadows the system default even when older")
}

func TestResolveTemplate_NewestOrgTemplateWins(t *testing.T) {
	now := time.Now()
	entity := model.Entity{Category: model.CategoryVendor, RiskLevel: model.RiskHigh}
	candidates := []model.Template{
		tmpl("org-old", "org-1", model.CategoryVendor, model.RiskHigh, now.Add(-48*time.Hour)),
		tmpl("org-new", "org-1", model.CategoryVendor, model.RiskHigh, now),
	}

	got, err := ResolveTemplate(entity, candidates)
	require.NoError(t, err)
	assert.Equal(t, "org-new", got.ID)

	// Deterministic under reversed candidate order.
	got, err = ResolveTemplate(entity, []model.Template{candidates[1], candidates[0]})
	require.NoError(t, err)
	assert.Equal(t, "org-new", got.ID)
}

func TestResolveTemplate_FallsBackAcrossRiskLevels(t *testing.T) {
	now := time.Now()
	entity := model.Entity{Category: model.CategoryTenant, RiskLevel: model.RiskHigh}
	candidates := []model.Template{
		tmpl("tenant-low", "", model.CategoryTenant, model.RiskLow, now),
		tmpl("vendor-high", "", model.CategoryVendor, model.RiskHigh, now),
	}

	got, err := ResolveTemplate(entity, candidates)
	require.NoError(t, err)
	assert.Equal(t, "tenant-low", got.ID, "nearest same-category group used when the exact risk level has none")
}

func TestResolveTemplate_NoCandidateForCategory(t *testing.T) {
	entity := model.Entity{Category: model.CategoryTenant, RiskLevel: model.RiskLow}
	_, err := ResolveTemplate(entity, []model.Template{
		tmpl("vendor-only", "", model.CategoryVendor, model.RiskLow, time.Now()),
	})
	require.ErrorIs(t, err, ErrNoTemplate)

	_, err = ResolveTemplate(entity, nil)
	require.ErrorIs(t, err, ErrNoTemplate)
}
