package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSourcePrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00001_local.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644))

	fsys, source, err := migrationSource(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, source)
	names, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_local.sql"}, names)
}

func TestMigrationSourceFallsBackToEmbedded(t *testing.T) {
	fsys, source, err := migrationSource(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, "embedded", source)
	names, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "00001_pipeline_state.sql")
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "postgres://", "", nil)
	assert.Error(t, err)
}
