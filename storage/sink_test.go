package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtAndReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part")

	sink, err := Open(path, 20, 10)
	require.NoError(t, err)

	require.NoError(t, sink.WriteAt(0, []byte("0123456789")))
	require.NoError(t, sink.WriteAt(1, []byte("abcdefghij")))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdefghij", string(data))
}

func TestOpenTruncatesToTotalLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part")

	sink, err := Open(path, 15, 10)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 15, info.Size())
}
