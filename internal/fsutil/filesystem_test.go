package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	assert.False(t, m.Exists("/dev/ttyACM0"))

	require.NoError(t, m.WriteFile("/dev/ttyACM0", []byte("x"), 0o600))
	assert.True(t, m.Exists("/dev/../dev/ttyACM0"))

	data, err := m.ReadFile("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	info, err := m.Stat("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, "ttyACM0", info.Name())
	assert.EqualValues(t, 1, info.Size())

	require.NoError(t, m.Remove("/dev/ttyACM0"))
	assert.False(t, m.Exists("/dev/ttyACM0"))

	_, err = m.ReadFile("/dev/ttyACM0")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, errors.Is(m.Remove("/dev/ttyACM0"), fs.ErrNotExist))
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	path := filepath.Join(t.TempDir(), "present")
	assert.False(t, fsys.Exists(path))

	require.NoError(t, fsys.WriteFile(path, []byte("hello"), 0o644))
	assert.True(t, fsys.Exists(path))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 5, info.Size())

	require.NoError(t, fsys.Remove(path))
	assert.False(t, fsys.Exists(path))
}
