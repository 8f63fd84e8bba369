package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/coverdesk/coverdesk/internal/db"
	"github.com/coverdesk/coverdesk/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations (evaluation reads and snapshot writes).
var preparedStatements = map[string]string{
	"get_entity":       `SELECT id, org_id, name, category, risk_level, template_id, contact_email, created_at FROM entities WHERE id = $1`,
	"insert_result":    `INSERT INTO compliance_results (id, entity_id, overall_status, result, evaluated_at) VALUES ($1, $2, $3, $4, $5)`,
	"latest_result":    `SELECT result FROM compliance_results WHERE entity_id = $1 ORDER BY evaluated_at DESC LIMIT 1`,
	"latest_cert":      `SELECT payload FROM certificates WHERE entity_id = $1 ORDER BY uploaded_at DESC LIMIT 1`,
	"insert_cert":      `INSERT INTO certificates (id, entity_id, payload, uploaded_at) VALUES ($1, $2, $3, $4)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct access (seed loading).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL,
	risk_level    TEXT NOT NULL,
	template_id   TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	risk_level TEXT NOT NULL,
	coverages  JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (org_id, name)
);

CREATE TABLE IF NOT EXISTS certificates (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL REFERENCES entities(id),
	payload     JSONB NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS compliance_results (
	id             TEXT PRIMARY KEY,
	entity_id      TEXT NOT NULL REFERENCES entities(id),
	overall_status TEXT NOT NULL,
	result         JSONB NOT NULL,
	evaluated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_org ON entities(org_id);
CREATE INDEX IF NOT EXISTS idx_entities_org_category ON entities(org_id, category);
CREATE INDEX IF NOT EXISTS idx_templates_org ON templates(org_id);
CREATE INDEX IF NOT EXISTS idx_certificates_entity ON certificates(entity_id, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_entity ON compliance_results(entity_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_status ON compliance_results(overall_status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateEntity(ctx context.Context, e model.Entity) (*model.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, org_id, name, category, risk_level, template_id, contact_email, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OrgID, e.Name, string(e.Category), string(e.RiskLevel), e.TemplateID, e.ContactEmail, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert entity")
	}
	return &e, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	var category, risk string
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, category, risk_level, template_id, contact_email, created_at FROM entities WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OrgID, &e.Name, &category, &risk, &e.TemplateID, &e.ContactEmail, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: entity %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	e.Category = model.EntityCategory(category)
	e.RiskLevel = model.RiskLevel(risk)
	return &e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	query := `SELECT id, org_id, name, category, risk_level, template_id, contact_email, created_at FROM entities WHERE 1=1`
	var args []any
	idx := 1
	if filter.OrgID != "" {
		query += ` AND org_id = $` + strconv.Itoa(idx)
		args = append(args, filter.OrgID)
		idx++
	}
	if filter.Category != "" {
		query += ` AND category = $` + strconv.Itoa(idx)
		args = append(args, string(filter.Category))
		idx++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(idx)
		args = append(args, filter.Limit)
		idx++
	}
	if filter.Offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(idx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		var category, risk string
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Name, &category, &risk, &e.TemplateID, &e.ContactEmail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		e.Category = model.EntityCategory(category)
		e.RiskLevel = model.RiskLevel(risk)
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities")
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t model.Template) (*model.Template, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()

	coverages, err := json.Marshal(t.Coverages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal coverages")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (id, org_id, name, category, risk_level, coverages, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.OrgID, t.Name, string(t.Category), string(t.RiskLevel), coverages, t.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert template")
	}
	return &t, nil
}

// UpsertTemplates bulk-loads templates with one multi-row statement keyed
// on (org_id, name). Re-running a seed refreshes requirements in place
// without duplicating rows or churning IDs.
func (s *PostgresStore) UpsertTemplates(ctx context.Context, templates []model.Template) (int64, error) {
	rows := make([][]any, 0, len(templates))
	for _, t := range templates {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		coverages, err := json.Marshal(t.Coverages)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal coverages for template %s", t.Name)
		}
		rows = append(rows, []any{t.ID, t.OrgID, t.Name, string(t.Category), string(t.RiskLevel), coverages, t.CreatedAt})
	}

	return db.UpsertBatch(ctx, s.pool, db.UpsertConfig{
		Table:        "templates",
		Columns:      []string{"id", "org_id", "name", "category", "risk_level", "coverages", "created_at"},
		ConflictKeys: []string{"org_id", "name"},
		UpdateCols:   []string{"category", "risk_level", "coverages"},
	}, rows)
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, category, risk_level, coverages, created_at FROM templates WHERE id = $1`,
		id,
	)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: template %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get template %s", id)
	}
	return t, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, orgID string, category model.EntityCategory) ([]model.Template, error) {
	query := `SELECT id, org_id, name, category, risk_level, coverages, created_at FROM templates WHERE (org_id = $1 OR org_id = '')`
	args := []any{orgID}
	if category != "" {
		query += ` AND category = $2`
		args = append(args, string(category))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan template")
		}
		templates = append(templates, *t)
	}
	return templates, eris.Wrap(rows.Err(), "postgres: list templates")
}

// scanTemplate reads one template row; works on both pgx.Row and pgx.Rows.
func scanTemplate(row pgx.Row) (*model.Template, error) {
	var t model.Template
	var category, risk string
	var coverages []byte
	if err := row.Scan(&t.ID, &t.OrgID, &t.Name, &category, &risk, &coverages, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Category = model.EntityCategory(category)
	t.RiskLevel = model.RiskLevel(risk)
	if err := json.Unmarshal(coverages, &t.Coverages); err != nil {
		return nil, eris.Wrap(err, "unmarshal coverages")
	}
	return &t, nil
}

func (s *PostgresStore) SaveCertificate(ctx context.Context, c model.Certificate) (*model.Certificate, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.UploadedAt.IsZero() {
		c.UploadedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal certificate")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO certificates (id, entity_id, payload, uploaded_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.EntityID, payload, c.UploadedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert certificate")
	}
	return &c, nil
}

func (s *PostgresStore) GetLatestCertificate(ctx context.Context, entityID string) (*model.Certificate, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM certificates WHERE entity_id = $1 ORDER BY uploaded_at DESC LIMIT 1`,
		entityID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: certificate for entity %s", entityID)
		}
		return nil, eris.Wrapf(err, "postgres: latest certificate for %s", entityID)
	}
	var c model.Certificate
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal certificate")
	}
	return &c, nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r model.ComplianceResult) (*model.ComplianceResult, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.EvaluatedAt.IsZero() {
		r.EvaluatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result")
	}
	// Results are append-only snapshots: always an insert, never an
	// update, so prior evaluations stay available for audit.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO compliance_results (id, entity_id, overall_status, result, evaluated_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.EntityID, string(r.OverallStatus), payload, r.EvaluatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert result")
	}
	return &r, nil
}

func (s *PostgresStore) GetLatestResult(ctx context.Context, entityID string) (*model.ComplianceResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM compliance_results WHERE entity_id = $1 ORDER BY evaluated_at DESC LIMIT 1`,
		entityID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: result for entity %s", entityID)
		}
		return nil, eris.Wrapf(err, "postgres: latest result for %s", entityID)
	}
	var r model.ComplianceResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &r, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, entityID string, limit int) ([]model.ComplianceResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT result FROM compliance_results WHERE entity_id = $1 ORDER BY evaluated_at DESC LIMIT $2`,
		entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list results for %s", entityID)
	}
	defer rows.Close()

	var results []model.ComplianceResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		var r model.ComplianceResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results")
}

