package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/config"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/todo-service/internal/repository")

// ErrDuplicateID is returned by Add when a todo with the same id is already stored.
var ErrDuplicateID = errors.New("todo with this id already exists")

// TodoRepository persists whole todo snapshots keyed by id.
type TodoRepository interface {
	// Add stores a new snapshot. It never overwrites an existing id.
	Add(ctx context.Context, todo model.Todo) error
	// GetByID returns the stored snapshot, or false when there is none.
	GetByID(ctx context.Context, id uuid.UUID) (model.Todo, bool, error)
	// ListAll returns every snapshot, most recently created first.
	ListAll(ctx context.Context) ([]model.Todo, error)
	// Update replaces the snapshot stored under todo.ID(). Missing ids are ignored.
	Update(ctx context.Context, todo model.Todo) error
	// Delete removes the snapshot for id. Missing ids are ignored.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UnitOfWork runs fn against a repository bound to a single transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo TodoRepository) error) error
}

// Store is a UnitOfWork backed by a concrete database.
type Store interface {
	UnitOfWork
	// Count returns the number of stored todos.
	Count(ctx context.Context) (int64, error)
	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := MigratePostgres(cfg.URL, logger); err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, cfg, logger)
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath(), MigrateSQLite, logger)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
