// Package backend opens the ledger store selected by DATA_BACKEND.
package backend

import (
	"context"
	"fmt"

	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/ledger/memory"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/postgres"
)

// Type names a store implementation.
type Type string

const (
	SQLite   Type = config.BackendSQLite
	Postgres Type = config.BackendPostgres
	Memory   Type = config.BackendMemory
)

func (t Type) String() string { return string(t) }

// IsValid reports whether t names a known backend.
func (t Type) IsValid() bool {
	switch t {
	case SQLite, Postgres, Memory:
		return true
	default:
		return false
	}
}

// Types returns all valid backend types.
func Types() []Type {
	return []Type{SQLite, Postgres, Memory}
}

// Open connects the store configured in cfg and checks it answers. The
// caller owns the returned store and must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (ledger.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is nil")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentBackend)

	var (
		store ledger.Store
		err   error
	)
	switch t := Type(cfg.DataBackend); t {
	case SQLite:
		store, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	case Postgres:
		store, err = postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		logger.InfoContext(ctx, "Initialized PostgreSQL backend")
	case Memory:
		store = memory.New()
		logger.WarnContext(ctx, "Initialized memory backend, data is lost on exit")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.DataBackend, err)
	}
	return store, nil
}
