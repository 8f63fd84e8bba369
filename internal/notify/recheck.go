// Package notify re-evaluates the whole book of entities on a schedule and
// pushes webhook alerts when the results warrant attention.
package notify

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// Summary aggregates one full re-check pass over all entities.
type Summary struct {
	Total        int `json:"total"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"non_compliant"`
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiring_soon"`
	Failed       int `json:"failed"`
}

// Recheck evaluates every entity as of today with bounded concurrency and
// persists a result snapshot per entity. Per-entity failures are counted,
// logged, and do not abort the pass.
func Recheck(ctx context.Context, st store.Store, svc *compliance.Service, concurrency int) (*Summary, error) {
	if concurrency <= 0 {
		concurrency = 8
	}

	entities, err := st.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "notify: list entities")
	}

	asOf := model.Today()
	summary := &Summary{Total: len(entities)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entity := range entities {
		g.Go(func() error {
			result, err := svc.EvaluateEntity(ctx, entity.ID, asOf)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				zap.L().Error("re-check failed for entity",
					zap.String("component", "notify"),
					zap.String("entity_id", entity.ID),
					zap.Error(err),
				)
				return nil
			}
			switch result.OverallStatus {
			case model.StatusCompliant:
				summary.Compliant++
			case model.StatusNonCompliant:
				summary.NonCompliant++
			case model.StatusExpired:
				summary.Expired++
			}
			if len(result.ExpiringSoon) > 0 {
				summary.ExpiringSoon++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "notify: re-check pass")
	}

	zap.L().Info("re-check pass complete",
		zap.String("component", "notify"),
		zap.Int("total", summary.Total),
		zap.Int("compliant", summary.Compliant),
		zap.Int("non_compliant", summary.NonCompliant),
		zap.Int("expired", summary.Expired),
		zap.Int("expiring_soon", summary.ExpiringSoon),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}
