package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "coverdesk.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database URL is required (COVERDESK_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initService(st store.Store) *compliance.Service {
	return compliance.NewService(st, cfg.Compliance.WarnWindowDays)
}
