// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides principal and refresh-token persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id                     TEXT PRIMARY KEY,
			email                  TEXT NOT NULL UNIQUE,
			name                   TEXT NOT NULL,
			role                   TEXT NOT NULL DEFAULT 'user',
			password_hash          TEXT,
			created_using          TEXT NOT NULL,
			credits                INTEGER NOT NULL DEFAULT 0,
			created_at             TEXT NOT NULL,
			password_changed_at    TEXT,
			reset_token_hash       TEXT,
			reset_token_expires_at TEXT,

			CHECK (role IN ('user', 'super-user', 'admin')),
			CHECK (created_using IN ('email', 'google'))
		);

		CREATE INDEX IF NOT EXISTS idx_principals_email ON principals(email);
		CREATE INDEX IF NOT EXISTS idx_principals_reset_hash ON principals(reset_token_hash);

		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash   TEXT PRIMARY KEY,
			token        TEXT NOT NULL,
			principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			issued_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_principal ON refresh_tokens(principal_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
