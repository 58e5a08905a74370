package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/tangle/internal/config"
	"github.com/dyluth/tangle/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	t.Run("fresh initialization", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Initialize(dir, false))

		cfg, err := config.Load(filepath.Join(dir, ConfigFile))
		require.NoError(t, err)
		assert.Equal(t, "example", cfg.Run.Name)
		assert.Equal(t, []int64{0, 1}, cfg.Actions.Labels)

		ds, err := dataset.Load(filepath.Join(dir, DatasetFile))
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1}, ds.Labels())
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "project")
		require.NoError(t, Initialize(dir, false))
		assert.FileExists(t, filepath.Join(dir, ConfigFile))
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644))

		err := Initialize(dir, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "project already initialized")
		assert.Contains(t, err.Error(), ConfigFile)

		content, err := os.ReadFile(filepath.Join(dir, ConfigFile))
		require.NoError(t, err)
		assert.Equal(t, "old content", string(content))
	})

	t.Run("force replaces existing files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetFile), []byte("{}"), 0644))

		require.NoError(t, Initialize(dir, true))
		_, err := config.Load(filepath.Join(dir, ConfigFile))
		require.NoError(t, err)
	})
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetFile), nil, 0644))

	err := CheckExisting(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "  - tangle.yml\n  - exemplars.jsonl\n")
}
