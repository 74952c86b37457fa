// Package sqlite implements the local mirror on a single-file SQLite database.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/migration"
	"github.com/julianstephens/agencydesk/internal/storage"
	"github.com/julianstephens/agencydesk/migrations"
)

// ErrChecksumMismatch marks a mirrored slot whose stored bytes no longer
// match the checksum written alongside them.
var ErrChecksumMismatch = errors.New("mirror checksum mismatch")

func init() {
	open := func(dsn string) (storage.Mirror, error) {
		return Open(context.Background(), pathFromDSN(dsn))
	}
	storage.RegisterMirror("", open)
	storage.RegisterMirror("sqlite", open)
	storage.RegisterMirror("file", open)
}

type Mirror struct {
	path string
	db   *sql.DB
}

// Open creates the database file if needed, applies pragmas and runs the
// embedded migrations.
func Open(ctx context.Context, path string) (*Mirror, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty mirror path", storage.ErrInvalidDSN)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	// single connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	sub, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	runner := migration.NewRunner(db, sub, migration.SQLite)
	if _, err := runner.Apply(ctx, func(msg string) { logger.Debug(msg, "mirror", path) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Mirror{path: path, db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (m *Mirror) Read(ctx context.Context, slot string) (json.RawMessage, error) {
	var value, checksum string
	err := m.db.QueryRowContext(ctx, "SELECT value, checksum FROM slots WHERE name = ?", slot).Scan(&value, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror slot %s: %w", slot, err)
	}
	if checksum != "" && checksum != hashValue(value) {
		return nil, fmt.Errorf("slot %s: %w", slot, ErrChecksumMismatch)
	}
	return json.RawMessage(value), nil
}

func (m *Mirror) Write(ctx context.Context, slot string, value json.RawMessage) error {
	v := string(value)
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO slots (name, value, updated_at, checksum) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			checksum = excluded.checksum
	`, slot, v, time.Now().UTC().Format(time.RFC3339Nano), hashValue(v))
	if err != nil {
		return fmt.Errorf("failed to write mirror slot %s: %w", slot, err)
	}
	return nil
}

func (m *Mirror) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *Mirror) Path() string {
	return m.path
}

func hashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func pathFromDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	for _, prefix := range []string{"sqlite://", "file://"} {
		if strings.HasPrefix(dsn, prefix) {
			return strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
