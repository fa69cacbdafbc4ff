package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"bk-go/internal/bk"
	"bk-go/internal/database/migrations"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// SQLStore keeps records in a single `records` table keyed by
// (kind, record_key). Every write is one statement, so each record is
// replaced atomically by the database.
type SQLStore struct {
	db      *sqlx.DB
	dialect migrations.Dialect
}

var (
	_ bk.RecordStore = (*SQLStore)(nil)
	_ bk.KeyScanner  = (*SQLStore)(nil)
)

// OpenSQLite opens a SQLite database file. path can be ":memory:".
// The pool is limited to one connection: SQLite allows a single writer, and
// an in-memory database exists only on the connection that created it.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLStore(db, migrations.SQLite), nil
}

// OpenPostgres opens a Postgres database through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLStore(db, migrations.Postgres), nil
}

// NewSQLStore wraps an open connection pool.
func NewSQLStore(db *sqlx.DB, dialect migrations.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Dialect reports which SQL flavour the store speaks.
func (s *SQLStore) Dialect() migrations.Dialect { return s.dialect }

// MigrateUp applies pending schema migrations.
func (s *SQLStore) MigrateUp() error {
	return migrations.MigrateUp(s.db.DB, s.dialect)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB, s.dialect)
}

func (s *SQLStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		s.db.Rebind(`SELECT value FROM records WHERE kind = ? AND record_key = ?`), kind, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, bk.Unavailable("get "+kind, err)
	}
	return value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, kind, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO records (kind, record_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, record_key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		kind, key, value, time.Now().UnixMilli())
	if err != nil {
		return bk.Unavailable("put "+kind, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM records WHERE kind = ? AND record_key = ?`), kind, key)
	if err != nil {
		return false, bk.Unavailable("delete "+kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, bk.Unavailable("delete "+kind, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM records WHERE kind = ? AND record_key = ?`), kind, key)
	if err != nil {
		return false, bk.Unavailable("exists "+kind, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Keys(ctx context.Context, kind string) ([]string, error) {
	keys := []string{}
	err := s.db.SelectContext(ctx, &keys,
		s.db.Rebind(`SELECT record_key FROM records WHERE kind = ?`), kind)
	if err != nil {
		return nil, bk.Unavailable("scan "+kind, err)
	}
	// Sorted here rather than in SQL so the order does not depend on collation.
	slices.Sort(keys)
	return keys, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
