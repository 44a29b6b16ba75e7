package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/todo-service/internal/model"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore persists todos in a SQLite database file.
type SQLiteStore struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens the database at path, creating its directory when
// needed, and applies migrate to it.
func NewSQLiteStore(path string, migrate MigrateFunc, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if migrate != nil {
		if err := migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite migrate: %w", err)
		}
	}

	return &SQLiteStore{conn: conn, logger: logger}, nil
}

// Do runs fn inside a single transaction.
func (s *SQLiteStore) Do(ctx context.Context, fn func(ctx context.Context, repo TodoRepository) error) (err error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Do")
	defer span.End()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err == nil {
			return
		}
		span.SetStatus(codes.Error, err.Error())
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "transaction rollback failed", slog.Any("error", rbErr))
			}
		}
	}()

	if err = fn(ctx, &sqliteTodoRepository{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored todos.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// sqliteTodoRepository is a TodoRepository bound to one transaction.
type sqliteTodoRepository struct {
	tx *sql.Tx
}

func (r *sqliteTodoRepository) Add(ctx context.Context, todo model.Todo) error {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Add",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		todo.ID().String(), todo.Title(), nullableDescription(todo), todo.Completed(),
		formatSQLiteTime(todo.CreatedAt()), formatSQLiteTime(todo.UpdatedAt()),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("add %s: %w", todo.ID(), ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

func (r *sqliteTodoRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Todo, bool, error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.GetByID",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	row := r.tx.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id.String())
	todo, err := scanSQLiteTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("todo.found", false))
		return model.Todo{}, false, nil
	}
	if err != nil {
		return model.Todo{}, false, fmt.Errorf("get todo %s: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("todo.found", true))
	return todo, true, nil
}

func (r *sqliteTodoRepository) ListAll(ctx context.Context) ([]model.Todo, error) {
	ctx, span := tracer.Start(ctx, "SQLiteStore.ListAll")
	defer span.End()

	rows, err := r.tx.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		todo, err := scanSQLiteTodo(rows)
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

func (r *sqliteTodoRepository) Update(ctx context.Context, todo model.Todo) error {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Update",
		trace.WithAttributes(attribute.String("todo.id", todo.ID().String())),
	)
	defer span.End()

	result, err := r.tx.ExecContext(ctx, `
		UPDATE todos SET title = ?, description = ?, completed = ?, updated_at = ?
		WHERE id = ?`,
		todo.Title(), nullableDescription(todo), todo.Completed(), formatSQLiteTime(todo.UpdatedAt()),
		todo.ID().String(),
	)
	if err != nil {
		return fmt.Errorf("update todo %s: %w", todo.ID(), err)
	}

	if n, err := result.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Bool("todo.found", n > 0))
	}
	return nil
}

func (r *sqliteTodoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "SQLiteStore.Delete",
		trace.WithAttributes(attribute.String("todo.id", id.String())),
	)
	defer span.End()

	result, err := r.tx.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete todo %s: %w", id, err)
	}

	if n, err := result.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Bool("todo.found", n > 0))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTodo(row rowScanner) (model.Todo, error) {
	var (
		rawID       string
		title       string
		description sql.NullString
		completed   bool
		rawCreated  string
		rawUpdated  string
	)
	if err := row.Scan(&rawID, &title, &description, &completed, &rawCreated, &rawUpdated); err != nil {
		return model.Todo{}, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return model.Todo{}, fmt.Errorf("parse id: %w", err)
	}
	createdAt, err := time.Parse(sqliteTimeLayout, rawCreated)
	if err != nil {
		return model.Todo{}, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(sqliteTimeLayout, rawUpdated)
	if err != nil {
		return model.Todo{}, fmt.Errorf("parse updated_at: %w", err)
	}

	var desc *string
	if description.Valid {
		desc = &description.String
	}
	return model.RestoreTodo(id, title, desc, completed, createdAt, updatedAt)
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
