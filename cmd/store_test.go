package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/store"
)

// setupConfig loads defaults from an empty temp dir and points the store and
// export output into it.
func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(dir, "screen.db")
	c.Export.OutputDir = filepath.Join(dir, "out")
	cfg = c
	return dir
}

// writeLines writes NDJSON lines to name under dir.
func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestInitStore_SQLite(t *testing.T) {
	dir := setupConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(dir, "screen.db"))
	assert.NoError(t, statErr)

	// Migrated: an empty listing succeeds.
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	setupConfig(t)
	cfg.Store.Driver = "mysql"

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)

	var verr *config.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "store.driver")
}

func TestInitStore_MissingURL(t *testing.T) {
	setupConfig(t)
	cfg.Store.DatabaseURL = ""

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.ErrorContains(t, err, "store.database_url")
}
