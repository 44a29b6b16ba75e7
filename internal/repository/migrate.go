package repository

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// MigrateFunc applies schema migrations to an open connection.
type MigrateFunc func(conn *sql.DB) error

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	// goose only calls Fatalf from its CLI helpers; never exit from a library.
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
}

// MigratePostgres opens a short-lived connection to dsn and runs the
// Postgres migrations.
func MigratePostgres(dsn string, logger *slog.Logger) error {
	conn, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("goose open db: %w", err)
	}
	defer conn.Close()

	if logger != nil {
		goose.SetLogger(gooseLogger{logger: logger})
	}
	return migrate(conn, "postgres", "migrations/postgres")
}

// MigrateSQLite runs the SQLite migrations on conn.
func MigrateSQLite(conn *sql.DB) error {
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return migrate(conn, "sqlite3", "migrations/sqlite")
}

func migrate(conn *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(conn, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
