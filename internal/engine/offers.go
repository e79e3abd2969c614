package engine

import (
	"time"

	"swapkv/internal/model"
)

type offerKind byte

const (
	offerActive offerKind = iota + 1
	// offerTombstone marks a key whose pairing just completed. Answers are pending
	// retrieval or expiry and no new offer may start until it is cleared.
	offerTombstone
)

type offer struct {
	key       string
	kind      offerKind
	owner     string
	values    model.Chunks
	expiresAt time.Time

	seq uint64
	pos int
}

func (o *offer) deadline() time.Time { return o.expiresAt }
func (o *offer) order() uint64        { return o.seq }
func (o *offer) position() int        { return o.pos }
func (o *offer) setPosition(i int)    { o.pos = i }

func (o *offer) tombstone() bool { return o.kind == offerTombstone }

// offerTable holds at most one offer per key plus an expiry ordering over all of them.
type offerTable struct {
	byKey map[string]*offer
	queue expiryQueue[*offer]
	seq   *uint64
}

func newOfferTable(seq *uint64) offerTable {
	return offerTable{byKey: make(map[string]*offer), seq: seq}
}

func (t *offerTable) get(key string) (*offer, bool) {
	o, ok := t.byKey[key]
	return o, ok
}

// put stores o under its key, replacing any previous offer.
func (t *offerTable) put(o *offer) {
	t.remove(o.key)
	*t.seq++
	o.seq = *t.seq
	t.byKey[o.key] = o
	t.queue.add(o)
}

func (t *offerTable) remove(key string) {
	o, ok := t.byKey[key]
	if !ok {
		return
	}
	delete(t.byKey, key)
	t.queue.remove(o)
}

// refresh replaces the values of an active offer and pushes its expiry out.
func (t *offerTable) refresh(o *offer, values model.Chunks, expiresAt time.Time) {
	*t.seq++
	o.seq = *t.seq
	o.values = values
	o.expiresAt = expiresAt
	t.queue.fix(o)
}

// oldest returns the offer that expires first.
func (t *offerTable) oldest() (*offer, bool) {
	return t.queue.peek()
}
