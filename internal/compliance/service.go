package compliance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// Service orchestrates a full compliance check for one entity: resolve the
// applicable template, load the latest certificate, evaluate, persist the
// result snapshot. The HTTP API, the CLI, and the background re-check loop
// all go through here.
type Service struct {
	store          store.Store
	warnWindowDays int
}

// NewService creates a Service. warnWindowDays <= 0 selects the default
// warning window.
func NewService(st store.Store, warnWindowDays int) *Service {
	if warnWindowDays <= 0 {
		warnWindowDays = DefaultWarnWindowDays
	}
	return &Service{store: st, warnWindowDays: warnWindowDays}
}

// EvaluateEntity runs a compliance check for the entity as of the given
// date and persists the result snapshot. An entity with no certificate on
// file is evaluated against an empty certificate, so every required
// coverage reports as missing rather than erroring out.
func (s *Service) EvaluateEntity(ctx context.Context, entityID string, asOf model.Date) (*model.ComplianceResult, error) {
	entity, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "compliance: load entity %s", entityID)
	}

	candidates, err := s.store.ListTemplates(ctx, entity.OrgID, entity.Category)
	if err != nil {
		return nil, eris.Wrapf(err, "compliance: list templates for org %s", entity.OrgID)
	}

	tmpl, err := ResolveTemplate(*entity, candidates)
	if err != nil {
		return nil, err
	}

	cert := model.Certificate{}
	latest, err := s.store.GetLatestCertificate(ctx, entityID)
	switch {
	case err == nil:
		cert = *latest
	case errors.Is(err, store.ErrNotFound):
		zap.L().Debug("no certificate on file",
			zap.String("component", "compliance"),
			zap.String("entity_id", entityID),
		)
	default:
		return nil, eris.Wrapf(err, "compliance: load certificate for entity %s", entityID)
	}

	result, err := Evaluate(tmpl.Coverages, cert, asOf, s.warnWindowDays)
	if err != nil {
		return nil, err
	}

	result.ID = uuid.NewString()
	result.EntityID = entityID
	result.TemplateID = tmpl.ID

	saved, err := s.store.SaveResult(ctx, result)
	if err != nil {
		return nil, eris.Wrapf(err, "compliance: save result for entity %s", entityID)
	}

	zap.L().Info("entity evaluated",
		zap.String("component", "compliance"),
		zap.String("entity_id", entityID),
		zap.String("template_id", tmpl.ID),
		zap.String("status", string(saved.OverallStatus)),
		zap.Int("gaps", len(saved.Gaps)),
	)

	return saved, nil
}
