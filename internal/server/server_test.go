package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu        sync.Mutex
	entities  map[string]model.Entity
	templates map[string]model.Template
	certs     []model.Certificate
	results   []model.ComplianceResult
}

func newMemStore() *memStore {
	return &memStore{
		entities:  make(map[string]model.Entity),
		templates: make(map[string]model.Template),
	}
}

func (m *memStore) CreateEntity(ctx context.Context, e model.Entity) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
	return &e, nil
}

func (m *memStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (m *memStore) ListEntities(ctx context.Context, filter store.EntityFilter) ([]model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Entity
	for _, e := range m.entities {
		if filter.OrgID != "" && e.OrgID != filter.OrgID {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) CreateTemplate(ctx context.Context, t model.Template) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return &t, nil
}

func (m *memStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) ListTemplates(ctx context.Context, orgID string, category model.EntityCategory) ([]model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Template
	for _, t := range m.templates {
		if t.OrgID != "" && t.OrgID != orgID {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SaveCertificate(ctx context.Context, c model.Certificate) (*model.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs = append(m.certs, c)
	return &c, nil
}

func (m *memStore) GetLatestCertificate(ctx context.Context, entityID string) (*model.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.certs) - 1; i >= 0; i-- {
		if m.certs[i].EntityID == entityID {
			return &m.certs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) SaveResult(ctx context.Context, r model.ComplianceResult) (*model.ComplianceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return &r, nil
}

func (m *memStore) GetLatestResult(ctx context.Context, entityID string) (*model.ComplianceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].EntityID == entityID {
			return &m.results[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListResults(ctx context.Context, entityID string, limit int) ([]model.ComplianceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ComplianceResult
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		if m.results[i].EntityID == entityID {
			out = append(out, m.results[i])
		}
	}
	return out, nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Close() error                      { return nil }

// stubExtractor returns a fixed certificate or error.
type stubExtractor struct {
	cert *model.Certificate
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, documentText string) (*model.Certificate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cert, nil
}

func newTestServer(t *testing.T, st *memStore, ext DocumentExtractor) *httptest.Server {
	t.Helper()
	svc := compliance.NewService(st, 30)
	srv := New(Config{Port: 0}, st, svc, ext)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func seedEntityAndTemplate(st *memStore) {
	st.entities["ent-1"] = model.Entity{
		ID:        "ent-1",
		OrgID:     "org-1",
		Name:      "Acme Plumbing",
		Category:  model.CategoryVendor,
		RiskLevel: model.RiskModerate,
		CreatedAt: time.Now().UTC(),
	}
	st.templates["tpl-1"] = model.Template{
		ID:        "tpl-1",
		Name:      "Vendor Moderate",
		OrgID:     "org-1",
		Category:  model.CategoryVendor,
		RiskLevel: model.RiskModerate,
		Coverages: []model.CoverageRequirement{
			{Coverage: model.CoverageGeneralLiability, MinAmount: model.Dollars(1_000_000), Required: true},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateEntity(t *testing.T) {
	st := newMemStore()
	ts := newTestServer(t, st, nil)

	resp := postJSON(t, ts.URL+"/api/entities", map[string]any{
		"name":       "Acme Plumbing",
		"org_id":     "org-1",
		"category":   "vendor",
		"risk_level": "moderate",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entity := decodeBody[model.Entity](t, resp)
	assert.NotEmpty(t, entity.ID)
	assert.Equal(t, model.CategoryVendor, entity.Category)
}

func TestCreateEntityValidation(t *testing.T) {
	ts := newTestServer(t, newMemStore(), nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "MissingName", body: map[string]any{"category": "vendor", "risk_level": "low"}},
		{name: "BadCategory", body: map[string]any{"name": "X", "category": "contractor", "risk_level": "low"}},
		{name: "BadRiskLevel", body: map[string]any{"name": "X", "category": "vendor", "risk_level": "extreme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/entities", tt.body)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetEntityNotFound(t *testing.T) {
	ts := newTestServer(t, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/api/entities/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTemplateRejectsMalformedRequirement(t *testing.T) {
	ts := newTestServer(t, newMemStore(), nil)

	resp := postJSON(t, ts.URL+"/api/templates", map[string]any{
		"name":       "Bad",
		"category":   "vendor",
		"risk_level": "low",
		"coverages": []map[string]any{
			{"coverage": "general_liability", "min_amount": -5},
		},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadStructuredCertificate(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	ts := newTestServer(t, st, nil)

	exp := model.NewDate(2027, time.January, 1)
	amount := model.Money(2_000_000)
	resp := postJSON(t, ts.URL+"/api/entities/ent-1/certificates", uploadCertificateRequest{
		Certificate: &model.Certificate{
			InsuredName:    "Acme Plumbing LLC",
			ExpirationDate: &exp,
			Coverages: []model.ExtractedCoverage{
				{Coverage: model.CoverageGeneralLiability, Amount: &amount},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cert := decodeBody[model.Certificate](t, resp)
	assert.Equal(t, "ent-1", cert.EntityID)
	assert.NotEmpty(t, cert.ID)
}

func TestUploadCertificateViaExtraction(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	exp := model.NewDate(2027, time.March, 1)
	ext := &stubExtractor{cert: &model.Certificate{
		InsuredName:    "Acme Plumbing LLC",
		ExpirationDate: &exp,
	}}
	ts := newTestServer(t, st, ext)

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/certificates", map[string]string{
		"document_text": "ACORD 25 certificate text",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cert := decodeBody[model.Certificate](t, resp)
	assert.Equal(t, "Acme Plumbing LLC", cert.InsuredName)
}

func TestUploadCertificateExtractionUnavailable(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	ts := newTestServer(t, st, nil)

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/certificates", map[string]string{
		"document_text": "some text",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadCertificateExtractionFails(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	ts := newTestServer(t, st, &stubExtractor{err: eris.New("upstream busy")})

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/certificates", map[string]string{
		"document_text": "some text",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestEvaluateEndToEnd(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	exp := model.NewDate(2027, time.January, 1)
	amount := model.Money(2_000_000)
	st.certs = append(st.certs, model.Certificate{
		ID:             "cert-1",
		EntityID:       "ent-1",
		ExpirationDate: &exp,
		Coverages: []model.ExtractedCoverage{
			{Coverage: model.CoverageGeneralLiability, Amount: &amount},
		},
	})
	ts := newTestServer(t, st, nil)

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/evaluate?as_of=2026-06-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[evaluationResponse](t, resp)
	require.NotNil(t, body.Result)
	assert.Equal(t, model.StatusCompliant, body.Result.OverallStatus)
	assert.Equal(t, "All required coverages are in place.", body.Insight)

	// Snapshot persisted.
	require.Len(t, st.results, 1)
	assert.Equal(t, "ent-1", st.results[0].EntityID)
}

func TestEvaluateNoTemplate(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	delete(st.templates, "tpl-1")
	ts := newTestServer(t, st, nil)

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/evaluate", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEvaluateBadAsOf(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	ts := newTestServer(t, st, nil)

	resp := postJSON(t, ts.URL+"/api/entities/ent-1/evaluate?as_of=06/01/2026", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetComplianceLatest(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	st.results = append(st.results, model.ComplianceResult{
		ID:            "res-1",
		EntityID:      "ent-1",
		OverallStatus: model.StatusNonCompliant,
		Gaps: []model.Gap{
			{Coverage: model.CoverageGeneralLiability, Reason: model.GapMissing, Required: "$1,000,000"},
		},
	})
	ts := newTestServer(t, st, nil)

	resp, err := http.Get(ts.URL + "/api/entities/ent-1/compliance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[evaluationResponse](t, resp)
	assert.Equal(t, model.StatusNonCompliant, body.Result.OverallStatus)
	assert.NotEmpty(t, body.Insight)
}

func TestGetComplianceNone(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	ts := newTestServer(t, st, nil)

	resp, err := http.Get(ts.URL + "/api/entities/ent-1/compliance")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEntitiesFiltered(t *testing.T) {
	st := newMemStore()
	seedEntityAndTemplate(st)
	st.entities["ent-2"] = model.Entity{
		ID: "ent-2", OrgID: "org-2", Name: "Other", Category: model.CategoryTenant, RiskLevel: model.RiskLow,
	}
	ts := newTestServer(t, st, nil)

	resp, err := http.Get(ts.URL + "/api/entities?org_id=org-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entities := decodeBody[[]model.Entity](t, resp)
	require.Len(t, entities, 1)
	assert.Equal(t, "ent-1", entities[0].ID)
}
