package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var ddl embed.FS

const (
	// DefaultQueryTimeout bounds every store call when no timeout is configured.
	DefaultQueryTimeout = 5 * time.Second
	// DefaultBackupTimeout bounds a single VACUUM INTO snapshot.
	DefaultBackupTimeout = 10 * time.Minute
)

// DB is the durable store. It owns the only authoritative copy of data.
type DB struct {
	*sql.DB
	path          string
	timeout       time.Duration
	backupTimeout time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithQueryTimeout bounds each store call.
func WithQueryTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.timeout = d
		}
	}
}

// WithBackupTimeout bounds each backup snapshot separately from queries.
func WithBackupTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.backupTimeout = d
		}
	}
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes writers and
	// keeps a transaction's read-then-write from failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err = migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, timeout: DefaultQueryTimeout, backupTimeout: DefaultBackupTimeout}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	b, err := ddl.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Ping checks the database is reachable within the query timeout.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return classify("ping", d.PingContext(ctx))
}

func (d *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(ts int64) time.Time { return time.Unix(ts, 0).UTC() }
