// ABOUTME: Shared test helpers for the store package
// ABOUTME: Creates a throwaway SQLite store under t.TempDir

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func createTestPrincipal(t *testing.T, s *SQLiteStore, id, email string) *Principal {
	t.Helper()
	p := &Principal{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		Role:         RoleUser,
		PasswordHash: "$2a$12$notarealhashnotarealhashnotarealhashnotarea",
		CreatedUsing: CreatedViaEmail,
		Credits:      5,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreatePrincipal(context.Background(), p))
	return p
}
