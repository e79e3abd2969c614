package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	require.NoError(t, Write(f, []byte("hello ")))
	require.NoError(t, Write(f, []byte("world")))
	require.NoError(t, f.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := Read(r, 6, 5)
	require.NoError(t, err)
	require.Equal(t, "world", string(got))

	got, err = Read(r, 8, 10)
	require.NoError(t, err)
	require.Equal(t, "rld", string(got))

	got, err = Read(r, 100, 4)
	require.NoError(t, err)
	require.Empty(t, got)
}
