//go:build linux || darwin || freebsd

package file

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapFileWriteClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	m, err := Open(path, false)
	require.NoError(t, err)
	assert.True(t, m.IsOpen())
	assert.Equal(t, path, m.Name())
	assert.Equal(t, DefaultMapSize, m.Size())

	// 映射期间文件被预分配到映射大小
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMapSize, st.Size())

	n, err := m.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.EqualValues(t, 6, m.Offset())

	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())
	assert.False(t, m.IsOpen())
	assert.NoError(t, m.Close(), "close is idempotent")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestMmapFileGrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.log")
	m, err := Open(path, false)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	var want []byte
	for i := 0; i < 4; i++ {
		_, err := m.Write(chunk)
		require.NoError(t, err)
		want = append(want, chunk...)
	}
	assert.Equal(t, 4*DefaultMapSize, m.Size(), "mapping doubles until the data fits")
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, content)
}

func TestMmapFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	m, err := Open(path, true)
	require.NoError(t, err)
	assert.EqualValues(t, 6, m.Offset())
	_, err = m.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))

	// 非追加模式会清空旧内容
	m, err = Open(path, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, m.Offset())
	require.NoError(t, m.Close())
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestMmapFileTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.log")
	m, err := Open(path, false)
	require.NoError(t, err)

	_, err = m.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, m.Sync())

	require.NoError(t, m.Truncate(4))
	assert.EqualValues(t, 4, m.Offset())
	_, err = m.Write([]byte("ab"))
	require.NoError(t, err)

	assert.Error(t, m.Truncate(-1))
	require.NoError(t, m.Truncate(2*DefaultMapSize+1))
	assert.Equal(t, 2*DefaultMapSize+1, m.Size())
	require.NoError(t, m.Truncate(6))
	require.NoError(t, m.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123ab", string(content))
}

func TestMmapFileClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	m, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = m.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrFileClosed)
	assert.ErrorIs(t, m.Truncate(0), ErrFileClosed)
	assert.NoError(t, m.Sync())
	assert.Equal(t, "", m.Name())
}

func TestMmapFileOpenError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), false)
	assert.Error(t, err)
}
