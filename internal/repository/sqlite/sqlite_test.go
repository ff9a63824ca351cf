package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func initRepo(t *testing.T, repo interface{ Init(context.Context) error }) {
	t.Helper()
	require.NoError(t, repo.Init(context.Background()))
	// Init must be idempotent across restarts.
	require.NoError(t, repo.Init(context.Background()))
}
