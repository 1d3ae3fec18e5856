// Package store is the local SQLite state: a response cache with expiry,
// an append-only operations log and a per-project analysis cache.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/adrg/xdg"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/quocvuong92/osram-cli/internal/constants"
)

// EnvDBPath overrides the database location
const EnvDBPath = "OSRAM_DB_PATH"

const dbFileName = "osram.db"

//go:embed migrations/*.sql
var migrations embed.FS

// Store owns the database handle shared by the repositories
type Store struct {
	db  *sql.DB
	sql sq.StatementBuilderType
	now func() time.Time

	path       string
	migrations *goose.Provider
}

// DefaultPath returns $OSRAM_DB_PATH or $XDG_DATA_HOME/osram/osram.db
func DefaultPath() string {
	if p := os.Getenv(EnvDBPath); p != "" {
		return p
	}
	return filepath.Join(xdg.DataHome, constants.AppName, dbFileName)
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fail("open", errors.New("database path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fail("open", fmt.Errorf("create store directory: %w", err))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fail("open", fmt.Errorf("open db: %w", err))
	}
	// One writer; the process is single-threaded anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fail("open", fmt.Errorf("ping db: %w", err))
	}

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, fail("open", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		_ = db.Close()
		return nil, fail("open", fmt.Errorf("load migrations: %w", err))
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fail("migrate", err)
	}

	return &Store{
		db:         db,
		sql:        sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now:        time.Now,
		path:       path,
		migrations: provider,
	}, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Reset drops and recreates every table
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.migrations.DownTo(ctx, 0); err != nil {
		return fail("reset", err)
	}
	if _, err := s.migrations.Up(ctx); err != nil {
		return fail("reset", err)
	}
	return nil
}

// Cache returns the response cache repository
func (s *Store) Cache() *CacheRepo {
	return &CacheRepo{s: s}
}

// Operations returns the operations log repository
func (s *Store) Operations() *OperationLog {
	return &OperationLog{s: s}
}

// Analyses returns the project analysis repository
func (s *Store) Analyses() *AnalysisRepo {
	return &AnalysisRepo{s: s}
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) get(ctx context.Context, dst any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := sqlscan.Get(ctx, s.db, dst, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) selectAll(ctx context.Context, dst any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlscan.Select(ctx, s.db, dst, query, args...)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
