package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOfferTableOrdersByExpiryNotInsertion(t *testing.T) {
	var seq uint64
	tbl := newOfferTable(&seq)
	base := time.Unix(100, 0)

	tbl.put(&offer{key: "long", kind: offerActive, expiresAt: base.Add(20 * time.Second)})
	tbl.put(&offer{key: "short", kind: offerActive, expiresAt: base.Add(2 * time.Second)})
	tbl.put(&offer{key: "mid", kind: offerActive, expiresAt: base.Add(5 * time.Second)})

	o, ok := tbl.oldest()
	require.True(t, ok)
	require.Equal(t, "short", o.key)

	tbl.refresh(o, nil, base.Add(30*time.Second))
	o, _ = tbl.oldest()
	require.Equal(t, "mid", o.key)

	tbl.remove("mid")
	o, _ = tbl.oldest()
	require.Equal(t, "long", o.key)

	tbl.remove("long")
	tbl.remove("short")
	_, ok = tbl.oldest()
	require.False(t, ok)
	require.Empty(t, tbl.byKey)
}

func TestOfferTablePutReplaces(t *testing.T) {
	var seq uint64
	tbl := newOfferTable(&seq)
	at := time.Unix(100, 0)

	tbl.put(&offer{key: "k", kind: offerActive, owner: "a", expiresAt: at})
	tbl.put(&offer{key: "k", kind: offerTombstone, expiresAt: at})
	require.Len(t, tbl.byKey, 1)
	require.Equal(t, 1, tbl.queue.Len())

	o, ok := tbl.get("k")
	require.True(t, ok)
	require.True(t, o.tombstone())
}

func TestOfferTableEqualDeadlinesKeepInsertionOrder(t *testing.T) {
	var seq uint64
	tbl := newOfferTable(&seq)
	at := time.Unix(100, 0)
	for _, k := range []string{"a", "b", "c"} {
		tbl.put(&offer{key: k, kind: offerActive, expiresAt: at})
	}
	for _, want := range []string{"a", "b", "c"} {
		o, ok := tbl.oldest()
		require.True(t, ok)
		require.Equal(t, want, o.key)
		tbl.remove(o.key)
	}
}

func TestAnswerTable(t *testing.T) {
	var seq uint64
	tbl := newAnswerTable(&seq)
	base := time.Unix(100, 0)

	tbl.putPair(
		&answer{key: "k1", party: "a", expiresAt: base.Add(time.Second)},
		&answer{key: "k1", party: "b", expiresAt: base.Add(time.Second)},
	)
	tbl.putPair(
		&answer{key: "k2", party: "a", expiresAt: base.Add(10 * time.Second)},
		&answer{key: "k2", party: "b", expiresAt: base.Add(10 * time.Second)},
	)
	require.Equal(t, 4, tbl.len())
	require.Equal(t, 2, tbl.keys())

	cleared, removed := tbl.removeExpired("k2", base.Add(time.Second))
	require.False(t, cleared)
	require.Zero(t, removed)

	cleared, removed = tbl.removeExpired("k1", base.Add(time.Second))
	require.True(t, cleared)
	require.Equal(t, 2, removed)
	_, ok := tbl.get("k1", "a")
	require.False(t, ok)

	cleared, removed = tbl.removeExpired("missing", base)
	require.True(t, cleared)
	require.Zero(t, removed)

	require.Zero(t, tbl.removeAllExpired(base.Add(5*time.Second)))
	require.Equal(t, 2, tbl.removeAllExpired(base.Add(10*time.Second)))
	require.Zero(t, tbl.len())
	require.Zero(t, tbl.keys())
	require.Zero(t, tbl.queue.Len())
}

func TestAnswerTablePutPairReplacesSameParty(t *testing.T) {
	var seq uint64
	tbl := newAnswerTable(&seq)
	base := time.Unix(100, 0)

	tbl.putPair(
		&answer{key: "k", party: "a", expiresAt: base},
		&answer{key: "k", party: "b", expiresAt: base},
	)
	tbl.putPair(
		&answer{key: "k", party: "a", expiresAt: base.Add(time.Second)},
		&answer{key: "k", party: "c", expiresAt: base.Add(time.Second)},
	)
	require.Equal(t, 3, tbl.len())
	require.Equal(t, 3, tbl.queue.Len())

	cleared, removed := tbl.removeExpired("k", base)
	require.False(t, cleared)
	require.Equal(t, 1, removed)
	_, ok := tbl.get("k", "a")
	require.True(t, ok)
	_, ok = tbl.get("k", "b")
	require.False(t, ok)
}
