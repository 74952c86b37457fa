// Package postgres implements the authoritative slot store on PostgreSQL.
// Each slot is one JSONB row guarded by a version counter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/migration"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/migrations"
)

const operationTimeout = 5 * time.Second

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

func init() {
	storage.RegisterRemote("postgres", func(dsn string) (storage.Remote, error) { return New(dsn) })
}

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type Remote struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// New validates the DSN but defers connecting until the first operation.
// Embedded passwords are accepted here; config decides where they may come
// from.
func New(dsn string) (*Remote, error) {
	if _, err := ValidateConnString(dsn); err != nil && !errors.Is(err, ErrEmbeddedCredentials) {
		return nil, err
	}
	return &Remote{dsn: strings.TrimSpace(dsn), openDB: sql.Open}, nil
}

func (r *Remote) ensureReady(ctx context.Context) error {
	r.initOnce.Do(func() {
		db, err := r.openDB("postgres", r.dsn)
		if err != nil {
			r.initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(r.dsn) {
				r.initErr = fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
				return
			}
			r.initErr = fmt.Errorf("failed to connect to database: %w", err)
			return
		}

		sub, err := fs.Sub(migrations.FS, "postgres")
		if err != nil {
			_ = db.Close()
			r.initErr = fmt.Errorf("failed to access postgres migrations: %w", err)
			return
		}
		runner := migration.NewRunner(db, sub, migration.Postgres)
		if _, err := runner.Apply(ctx, func(msg string) { logger.Debug(msg, "backend", "postgres") }); err != nil {
			_ = db.Close()
			r.initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
		r.db = db
	})
	return r.initErr
}

func (r *Remote) Read(ctx context.Context, slot string) (storage.Snapshot, error) {
	if err := r.ensureReady(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var (
		payload string
		version int64
	)
	err := r.db.QueryRowContext(ctx, "SELECT value, version FROM slots WHERE name = $1", slot).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, nil
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return storage.Snapshot{Value: json.RawMessage(payload), Version: version}, nil
}

func (r *Remote) Write(ctx context.Context, slot string, value json.RawMessage, expectedVersion int64) (int64, error) {
	if err := r.ensureReady(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var (
		version int64
		err     error
	)
	if expectedVersion == 0 {
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO slots (name, value, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (name) DO NOTHING
			RETURNING version`, slot, string(value)).Scan(&version)
	} else {
		err = r.db.QueryRowContext(ctx, `
			UPDATE slots SET value = $2, version = version + 1, updated_at = NOW()
			WHERE name = $1 AND version = $3
			RETURNING version`, slot, string(value), expectedVersion).Scan(&version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.conflict(ctx, slot, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	return version, nil
}

func (r *Remote) conflict(ctx context.Context, slot string, expected int64) error {
	var actual int64
	err := r.db.QueryRowContext(ctx, "SELECT version FROM slots WHERE name = $1", slot).Scan(&actual)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read version of slot %s: %w", slot, err)
	}
	return &storage.ConflictError{Slot: slot, Expected: expected, Actual: actual}
}

func (r *Remote) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// hasSSLMode reports whether the connection string sets sslmode, in either
// URL or key=value form.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	for _, part := range strings.Fields(connStr) {
		key, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(key, "sslmode") {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr parses as a PostgreSQL URI or DSN
// and carries no password. Passwords belong in the keyring or PGPASSFILE.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		parsed, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := parsed.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if parsed.Host == "" && parsed.User == nil && (parsed.Path == "" || parsed.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return true, nil
	}

	for _, pair := range strings.Fields(connStr) {
		key, _, ok := strings.Cut(pair, "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), "password") {
			return false, ErrEmbeddedCredentials
		}
	}
	return true, nil
}
