package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapkv/internal/journal"
	"swapkv/internal/model"
)

func TestJournalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")
	cfg := journal.DefaultConfig()
	cfg.Path = path
	j, err := journal.Open(context.Background(), cfg)
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(model.Event{Type: model.OutcomeOffered, Key: []byte("k"), Party: []byte("a"), Offset: 2, At: at}))
	require.NoError(t, j.Append(model.Event{Type: model.OutcomeMatched, Key: []byte("k"), Party: []byte("b"), Offset: 1, Chunks: 2, At: at}))
	require.NoError(t, j.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"journal", "dump", path})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1\t2024-03-01T12:00:00Z\toffered\tkey=aw==\tparty=YQ==\toff=2\tchunks=0", lines[0])
	assert.Contains(t, lines[1], "\tmatched\t")
	assert.Contains(t, lines[1], "chunks=2")
}

func TestJournalDumpWithoutPath(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"journal", "dump"})
	require.ErrorContains(t, cmd.Execute(), "no journal path")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--store.shards=0"})
	require.ErrorContains(t, cmd.Execute(), "shards")
}
