package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesParents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteFileAtomic(root, "server/api/index.js", "ok\n"))

	data, err := os.ReadFile(filepath.Join(root, "server/api/index.js"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(data))
}

func TestWriteFileAtomic_NoTempLeftBehind(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteFileAtomic(root, "a.py", "x = 1\n"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.py", entries[0].Name())
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteFileAtomic(root, "a.py", "old\n"))
	require.NoError(t, WriteFileAtomic(root, "a.py", "new\n"))

	data, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
}
