// Package dbtest opens throwaway stores for tests
package dbtest

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db"
)

// Logger discards everything
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Open creates a file-backed store under t.TempDir, closed on cleanup
func Open(t testing.TB) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "msupply.db"), Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
