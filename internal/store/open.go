package store

import (
	"context"
	"fmt"

	"github.com/wonny/factorlab/pkg/config"
	"github.com/wonny/factorlab/pkg/database"
)

// Open returns the backend selected by STORE_BACKEND. db is only used by the postgres backend.
func Open(ctx context.Context, cfg *config.Config, db *database.DB) (Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		return OpenBadger(cfg.Store.Path)
	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres backend requires a database connection")
		}
		return OpenPostgres(ctx, db.Pool)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Store.Backend)
	}
}
