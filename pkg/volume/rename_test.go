package volume

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameIfAbsent(t *testing.T) {
	t.Run("moves file", func(t *testing.T) {
		dir := t.TempDir()
		oldPath := filepath.Join(dir, "old")
		newPath := filepath.Join(dir, "new")
		require.NoError(t, os.WriteFile(oldPath, []byte("data"), 0644))

		require.NoError(t, renameIfAbsent(oldPath, newPath))

		_, err := os.Stat(oldPath)
		assert.ErrorIs(t, err, fs.ErrNotExist)
		data, err := os.ReadFile(newPath)
		require.NoError(t, err)
		assert.Equal(t, "data", string(data))
	})

	t.Run("existing target kept", func(t *testing.T) {
		dir := t.TempDir()
		oldPath := filepath.Join(dir, "old")
		newPath := filepath.Join(dir, "new")
		require.NoError(t, os.WriteFile(oldPath, []byte("source"), 0644))
		require.NoError(t, os.WriteFile(newPath, []byte("target"), 0644))

		err := renameIfAbsent(oldPath, newPath)
		assert.ErrorIs(t, err, fs.ErrExist)

		data, err := os.ReadFile(newPath)
		require.NoError(t, err)
		assert.Equal(t, "target", string(data))
		_, err = os.Stat(oldPath)
		assert.NoError(t, err)
	})

	t.Run("missing source", func(t *testing.T) {
		dir := t.TempDir()
		err := renameIfAbsent(filepath.Join(dir, "old"), filepath.Join(dir, "new"))
		assert.ErrorIs(t, err, fs.ErrNotExist)

		_, err = os.Stat(filepath.Join(dir, "new"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}
