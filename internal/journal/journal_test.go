package journal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"swapkv/internal/model"
)

func testConfig(t *testing.T) Config {
	return Config{
		Path:           filepath.Join(t.TempDir(), "events.journal"),
		EnqueueTimeout: 500 * time.Millisecond,
		FlushInterval:  30 * time.Second, // avoid periodic flush interference
		MaxEnqueuing:   16,
		BufferBytes:    128,
	}
}

func event(typ model.Outcome, key string) model.Event {
	return model.Event{
		Type:   typ,
		Key:    []byte(key),
		Party:  []byte("p1"),
		Offset: 3,
		Chunks: 2,
		At:     time.Date(2024, 3, 1, 12, 0, 0, 42, time.UTC),
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func TestJournalFlushOnBufferLimit(t *testing.T) {
	cfg := testConfig(t)
	j, err := Open(context.Background(), cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.Zero(t, fileSize(cfg.Path), "first record must stay buffered")

	// Appends are acknowledged by the writer, so the flush triggered by the second
	// record has already happened when Append returns.
	require.NoError(t, j.Append(event(model.OutcomeMatched, string(bytes.Repeat([]byte("a"), 60)))))
	require.NotZero(t, fileSize(cfg.Path))
}

func TestJournalFlushOnClose(t *testing.T) {
	cfg := testConfig(t)
	j, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.Zero(t, fileSize(cfg.Path))

	require.NoError(t, j.Close())
	require.NotZero(t, fileSize(cfg.Path))
	require.ErrorIs(t, j.Append(event(model.OutcomeOffered, "k2")), ErrClosed)
}

func TestJournalFlushOnInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferBytes = 1 << 20
	clock := clockwork.NewFakeClock()
	j, err := Open(context.Background(), cfg, WithClock(clock))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.Zero(t, fileSize(cfg.Path))

	clock.Advance(cfg.FlushInterval)
	require.Eventually(t, func() bool {
		return fileSize(cfg.Path) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestJournalLoadContinuesSequence(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	j, err := Open(context.Background(), cfg, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.NoError(t, j.Publish(context.Background(), event(model.OutcomeMatched, "k1")))
	require.NoError(t, j.Close())

	j, err = Open(context.Background(), cfg, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, j.Append(event(model.OutcomeRetrieved, "k1")))
	require.NoError(t, j.Close())

	events, err := Load(cfg.Path, logger)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, typ := range []model.Outcome{model.OutcomeOffered, model.OutcomeMatched, model.OutcomeRetrieved} {
		want := event(typ, "k1")
		want.Sequence = uint64(i + 1)
		require.Equal(t, want, events[i])
	}
}

func TestJournalLoadStopsAtTruncation(t *testing.T) {
	cfg := testConfig(t)
	j, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.NoError(t, j.Append(event(model.OutcomeAppended, "k1")))
	require.NoError(t, j.Close())

	size := fileSize(cfg.Path)
	require.NoError(t, os.Truncate(cfg.Path, size-3))

	events, err := Load(cfg.Path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(1), lastSequence(cfg.Path))
}

func TestJournalLoadStopsAtCorruption(t *testing.T) {
	cfg := testConfig(t)
	j, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, j.Append(event(model.OutcomeOffered, "k1")))
	require.NoError(t, j.Append(event(model.OutcomeAppended, "k2")))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(cfg.Path, data, 0o644))

	events, err := Load(cfg.Path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, []byte("k1"), events[0].Key)
}

func TestLoadMissingFile(t *testing.T) {
	events, err := Load(filepath.Join(t.TempDir(), "missing"), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
