package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/config"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const todoColumns = `id, title, description, completed, created_at, updated_at`

// PostgresStore persists todos in PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to the database described by cfg and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("pg parse config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Do runs fn inside a single transaction.
func (s *PostgresStore) Do(ctx context.Context, fn func(ctx context.Context, repo TodoRepository) error) (err error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Do")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err == nil {
			return
		}
		span.SetStatus(codes.Error, err.Error())
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.ErrorContext(ctx, "transaction rollback failed", slog.Any("error", rbErr))
			return
		}
		s.logger.DebugContext(ctx, "transaction rolled back", slog.Any("error", err))
	}()

	if err = fn(ctx, &pgTodoRepository{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored todos.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM todos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgTodoRepository is a TodoRepository bound to one transaction.
type pgTodoRepository struct {
	tx pgx.Tx
}

func (r *pgTodoRepository) Add(ctx context.Context, todo model.Todo) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.Add",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	description := nullableDescription(todo)
	_, err := r.tx.Exec(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		todo.ID(), todo.Title(), description, todo.Completed(), todo.CreatedAt(), todo.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("add %s: %w", todo.ID(), ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

func (r *pgTodoRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Todo, bool, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.GetByID",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	row := r.tx.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1`, id)
	todo, err := scanPGTodo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetAttributes(attribute.Bool("todo.found", false))
		return model.Todo{}, false, nil
	}
	if err != nil {
		return model.Todo{}, false, fmt.Errorf("get todo %s: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("todo.found", true))
	return todo, true, nil
}

func (r *pgTodoRepository) ListAll(ctx context.Context) ([]model.Todo, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.ListAll")
	defer span.End()

	rows, err := r.tx.Query(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		todo, err := scanPGTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	span.SetAttributes(attribute.Int("todo.count", len(todos)))
	return todos, nil
}

func (r *pgTodoRepository) Update(ctx context.Context, todo model.Todo) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.Update",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	description := nullableDescription(todo)
	tag, err := r.tx.Exec(ctx, `
		UPDATE todos SET title = $2, description = $3, completed = $4, updated_at = $5
		WHERE id = $1`,
		todo.ID(), todo.Title(), description, todo.Completed(), todo.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("update todo %s: %w", todo.ID(), err)
	}

	span.SetAttributes(attribute.Bool("todo.found", tag.RowsAffected() > 0))
	return nil
}

func (r *pgTodoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.Delete",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	tag, err := r.tx.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete todo %s: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("todo.found", tag.RowsAffected() > 0))
	return nil
}

func scanPGTodo(row pgx.Row) (model.Todo, error) {
	var (
		id          uuid.UUID
		title       string
		description *string
		completed   bool
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(&id, &title, &description, &completed, &createdAt, &updatedAt); err != nil {
		return model.Todo{}, err
	}
	return model.RestoreTodo(id, title, description, completed, createdAt, updatedAt)
}

func nullableDescription(todo model.Todo) *string {
	if d, ok := todo.Description(); ok {
		return &d
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation (code 23505).
func isUniqueViolation(err error) bool {
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		return pge.Code == "23505"
	}
	return false
}
