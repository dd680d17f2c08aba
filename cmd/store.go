package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/registry"
	"github.com/sells-group/callflow/internal/store"
	"github.com/sells-group/callflow/internal/telemetry"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	return telemetry.WrapStore(st, cfg.Telemetry.Enabled), nil
}

func initCatalog() (*registry.Catalog, error) {
	if cfg.Flows.CatalogPath == "" {
		return registry.Default(), nil
	}
	return registry.LoadCatalogFromFile(cfg.Flows.CatalogPath)
}
