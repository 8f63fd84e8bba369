package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// recheckStore backs a Recheck pass with canned entities and certificates.
type recheckStore struct {
	store.Store

	mu        sync.Mutex
	entities  []model.Entity
	templates []model.Template
	certs     map[string]model.Certificate
	saved     []model.ComplianceResult
}

func (f *recheckStore) ListEntities(ctx context.Context, filter store.EntityFilter) ([]model.Entity, error) {
	return f.entities, nil
}

func (f *recheckStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	for _, e := range f.entities {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *recheckStore) ListTemplates(ctx context.Context, orgID string, category model.EntityCategory) ([]model.Template, error) {
	return f.templates, nil
}

func (f *recheckStore) GetLatestCertificate(ctx context.Context, entityID string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certs[entityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *recheckStore) SaveResult(ctx context.Context, r model.ComplianceResult) (*model.ComplianceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r)
	return &r, nil
}

func entityFixture(id string) model.Entity {
	return model.Entity{
		ID:        id,
		OrgID:     "org-1",
		Name:      "Entity " + id,
		Category:  model.CategoryVendor,
		RiskLevel: model.RiskModerate,
	}
}

func certFixture(entityID string, amount int64, daysToExpiry int) model.Certificate {
	m := model.Money(amount)
	exp := model.Today().AddDays(daysToExpiry)
	return model.Certificate{
		EntityID:       entityID,
		ExpirationDate: &exp,
		Coverages: []model.ExtractedCoverage{
			{Coverage: model.CoverageGeneralLiability, Amount: &m},
		},
	}
}

func TestRecheck(t *testing.T) {
	st := &recheckStore{
		entities: []model.Entity{
			entityFixture("ent-ok"),
			entityFixture("ent-gap"),
			entityFixture("ent-expired"),
			entityFixture("ent-expiring"),
		},
		templates: []model.Template{
			{
				ID:        "tpl-1",
				OrgID:     "org-1",
				Category:  model.CategoryVendor,
				RiskLevel: model.RiskModerate,
				Coverages: []model.CoverageRequirement{
					{Coverage: model.CoverageGeneralLiability, MinAmount: model.Dollars(1_000_000), Required: true},
				},
				CreatedAt: time.Now().UTC(),
			},
		},
		certs: map[string]model.Certificate{
			"ent-ok":       certFixture("ent-ok", 2_000_000, 365),
			"ent-gap":      certFixture("ent-gap", 500_000, 365),
			"ent-expired":  certFixture("ent-expired", 2_000_000, -10),
			"ent-expiring": certFixture("ent-expiring", 2_000_000, 15),
		},
	}

	svc := compliance.NewService(st, 30)
	summary, err := Recheck(context.Background(), st, svc, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Compliant) // ent-ok and ent-expiring
	assert.Equal(t, 1, summary.NonCompliant)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 1, summary.ExpiringSoon)
	assert.Zero(t, summary.Failed)

	// Every entity got a persisted snapshot.
	assert.Len(t, st.saved, 4)
}

func TestRecheckCountsFailures(t *testing.T) {
	st := &recheckStore{
		entities: []model.Entity{entityFixture("ent-1")},
		// No templates: resolution fails for every entity.
		certs: map[string]model.Certificate{},
	}

	svc := compliance.NewService(st, 30)
	summary, err := Recheck(context.Background(), st, svc, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, st.saved)
}

func TestRecheckEmptyBook(t *testing.T) {
	st := &recheckStore{}
	svc := compliance.NewService(st, 30)
	summary, err := Recheck(context.Background(), st, svc, 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Empty(t, NewAlerter("").Evaluate(summary))
}
