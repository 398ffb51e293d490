package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/oeaw/storyscout/internal/store"
)

// openStore opens the configured database backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q (want sqlite or postgres)", cfg.Store.Driver)
	}
}
