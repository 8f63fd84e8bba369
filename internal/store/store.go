// Package store persists entities, requirement templates, extracted
// certificates, and compliance result snapshots. Two drivers are
// provided: Postgres for deployments and SQLite for local use.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coverdesk/coverdesk/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// EntityFilter specifies criteria for listing entities.
type EntityFilter struct {
	OrgID    string               `json:"org_id,omitempty"`
	Category model.EntityCategory `json:"category,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the COI tracker.
//
// Certificates and compliance results are append-only snapshots: a new
// upload or re-check inserts a new row, and "latest" queries drive
// display. Prior rows remain for history and audit.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, e model.Entity) (*model.Entity, error)
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error)

	// Templates
	CreateTemplate(ctx context.Context, t model.Template) (*model.Template, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	// ListTemplates returns the candidate set for resolution: the org's
	// own templates plus the system defaults, optionally narrowed to one
	// category.
	ListTemplates(ctx context.Context, orgID string, category model.EntityCategory) ([]model.Template, error)

	// Certificates
	SaveCertificate(ctx context.Context, c model.Certificate) (*model.Certificate, error)
	GetLatestCertificate(ctx context.Context, entityID string) (*model.Certificate, error)

	// Compliance result snapshots
	SaveResult(ctx context.Context, r model.ComplianceResult) (*model.ComplianceResult, error)
	GetLatestResult(ctx context.Context, entityID string) (*model.ComplianceResult, error)
	ListResults(ctx context.Context, entityID string, limit int) ([]model.ComplianceResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
