package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/coverdesk/coverdesk/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local and single-host deployments; schema mirrors the Postgres driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	risk_level    TEXT NOT NULL,
	template_id   TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	risk_level TEXT NOT NULL,
	coverages  TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (org_id, name)
);

CREATE TABLE IF NOT EXISTS certificates (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL REFERENCES entities(id),
	payload     TEXT NOT NULL,
	uploaded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS compliance_results (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL REFERENCES entities(id),
	overall_status TEXT NOT NULL,
	result         TEXT NOT NULL,
	evaluated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_org ON entities(org_id);
CREATE INDEX IF NOT EXISTS idx_templates_org ON templates(org_id);
CREATE INDEX IF NOT EXISTS idx_certificates_entity ON certificates(entity_id, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_entity ON compliance_results(entity_id, evaluated_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, e model.Entity) (*model.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, org_id, name, category, risk_level, template_id, contact_email, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, e.Name, string(e.Category), string(e.RiskLevel), e.TemplateID, e.ContactEmail, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert entity")
	}
	return &e, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	var category, risk string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, category, risk_level, template_id, contact_email, created_at FROM entities WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.OrgID, &e.Name, &category, &risk, &e.TemplateID, &e.ContactEmail, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: entity %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	e.Category = model.EntityCategory(category)
	e.RiskLevel = model.RiskLevel(risk)
	return &e, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	query := `SELECT id, org_id, name, category, risk_level, template_id, contact_email, created_at FROM entities WHERE 1=1`
	var args []any
	if filter.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		var category, risk string
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Name, &category, &risk, &e.TemplateID, &e.ContactEmail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.Category = model.EntityCategory(category)
		e.RiskLevel = model.RiskLevel(risk)
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities")
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t model.Template) (*model.Template, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()

	coverages, err := json.Marshal(t.Coverages)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal coverages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, org_id, name, category, risk_level, coverages, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrgID, t.Name, string(t.Category), string(t.RiskLevel), string(coverages), t.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert template")
	}
	return &t, nil
}

// UpsertTemplates loads templates keyed on (org_id, name), refreshing
// requirements in place on re-runs.
func (s *SQLiteStore) UpsertTemplates(ctx context.Context, templates []model.Template) (int64, error) {
	var affected int64
	for _, t := range templates {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		coverages, err := json.Marshal(t.Coverages)
		if err != nil {
			return affected, eris.Wrapf(err, "sqlite: marshal coverages for template %s", t.Name)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO templates (id, org_id, name, category, risk_level, coverages, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (org_id, name) DO UPDATE SET category = excluded.category, risk_level = excluded.risk_level, coverages = excluded.coverages`,
			t.ID, t.OrgID, t.Name, string(t.Category), string(t.RiskLevel), string(coverages), t.CreatedAt,
		)
		if err != nil {
			return affected, eris.Wrapf(err, "sqlite: upsert template %s", t.Name)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}
	return affected, nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	var t model.Template
	var category, risk, coverages string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, category, risk_level, coverages, created_at FROM templates WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.OrgID, &t.Name, &category, &risk, &coverages, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: template %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get template %s", id)
	}
	t.Category = model.EntityCategory(category)
	t.RiskLevel = model.RiskLevel(risk)
	if err := json.Unmarshal([]byte(coverages), &t.Coverages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal coverages")
	}
	return &t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, orgID string, category model.EntityCategory) ([]model.Template, error) {
	query := `SELECT id, org_id, name, category, risk_level, coverages, created_at FROM templates WHERE (org_id = ? OR org_id = '')`
	args := []any{orgID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		var t model.Template
		var cat, risk, coverages string
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &cat, &risk, &coverages, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan template")
		}
		t.Category = model.EntityCategory(cat)
		t.RiskLevel = model.RiskLevel(risk)
		if err := json.Unmarshal([]byte(coverages), &t.Coverages); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal coverages")
		}
		templates = append(templates, t)
	}
	return templates, eris.Wrap(rows.Err(), "sqlite: list templates")
}

func (s *SQLiteStore) SaveCertificate(ctx context.Context, c model.Certificate) (*model.Certificate, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.UploadedAt.IsZero() {
		c.UploadedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal certificate")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO certificates (id, entity_id, payload, uploaded_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.EntityID, string(payload), c.UploadedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert certificate")
	}
	return &c, nil
}

func (s *SQLiteStore) GetLatestCertificate(ctx context.Context, entityID string) (*model.Certificate, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM certificates WHERE entity_id = ? ORDER BY uploaded_at DESC LIMIT 1`,
		entityID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: certificate for entity %s", entityID)
		}
		return nil, eris.Wrapf(err, "sqlite: latest certificate for %s", entityID)
	}
	var c model.Certificate
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal certificate")
	}
	return &c, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r model.ComplianceResult) (*model.ComplianceResult, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.EvaluatedAt.IsZero() {
		r.EvaluatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal result")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO compliance_results (id, entity_id, overall_status, result, evaluated_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.EntityID, string(r.OverallStatus), string(payload), r.EvaluatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert result")
	}
	return &r, nil
}

func (s *SQLiteStore) GetLatestResult(ctx context.Context, entityID string) (*model.ComplianceResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM compliance_results WHERE entity_id = ? ORDER BY evaluated_at DESC LIMIT 1`,
		entityID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: result for entity %s", entityID)
		}
		return nil, eris.Wrapf(err, "sqlite: latest result for %s", entityID)
	}
	var r model.ComplianceResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &r, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, entityID string, limit int) ([]model.ComplianceResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM compliance_results WHERE entity_id = ? ORDER BY evaluated_at DESC LIMIT ?`,
		entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list results for %s", entityID)
	}
	defer rows.Close()

	var results []model.ComplianceResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		var r model.ComplianceResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results")
}
