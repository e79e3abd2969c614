package engine

import (
	"time"

	"swapkv/internal/model"
)

// answer is one matched party's view of a completed pairing.
type answer struct {
	key         string
	party       string
	original    model.Chunks
	counterpart model.Chunks
	expiresAt   time.Time

	seq uint64
	pos int
}

func (a *answer) deadline() time.Time { return a.expiresAt }
func (a *answer) order() uint64        { return a.seq }
func (a *answer) position() int        { return a.pos }
func (a *answer) setPosition(i int)    { a.pos = i }

// answerTable maps key -> party -> answer. A single queue orders answers of all keys by
// expiry, which serves both per-key sweeps and the full sweep.
type answerTable struct {
	byKey map[string]map[string]*answer
	queue expiryQueue[*answer]
	seq   *uint64
	count int
}

func newAnswerTable(seq *uint64) answerTable {
	return answerTable{byKey: make(map[string]map[string]*answer), seq: seq}
}

func (t *answerTable) get(key, party string) (*answer, bool) {
	a, ok := t.byKey[key][party]
	return a, ok
}

// putPair inserts both sides of a match. Existing answers for the same parties are replaced.
func (t *answerTable) putPair(a, b *answer) {
	parties, ok := t.byKey[a.key]
	if !ok {
		parties = make(map[string]*answer, 2)
		t.byKey[a.key] = parties
	}
	for _, ans := range [2]*answer{a, b} {
		if prev, ok := parties[ans.party]; ok {
			t.queue.remove(prev)
			t.count--
		}
		*t.seq++
		ans.seq = *t.seq
		parties[ans.party] = ans
		t.queue.add(ans)
		t.count++
	}
}

// latestExpiry returns the furthest expiry among the answers of key.
func (t *answerTable) latestExpiry(key string) (time.Time, bool) {
	var latest time.Time
	parties, ok := t.byKey[key]
	for _, a := range parties {
		if a.expiresAt.After(latest) {
			latest = a.expiresAt
		}
	}
	return latest, ok && len(parties) > 0
}

// removeExpired deletes every answer under key with expiresAt <= now. It reports whether
// the key holds no answers afterwards, together with the number removed.
func (t *answerTable) removeExpired(key string, now time.Time) (bool, int) {
	parties, ok := t.byKey[key]
	if !ok {
		return true, 0
	}
	removed := 0
	for party, a := range parties {
		if a.expiresAt.After(now) {
			continue
		}
		delete(parties, party)
		t.queue.remove(a)
		removed++
	}
	t.count -= removed
	if len(parties) == 0 {
		delete(t.byKey, key)
		return true, removed
	}
	return false, removed
}

// removeAllExpired drains expired answers of every key in expiry order.
func (t *answerTable) removeAllExpired(now time.Time) int {
	removed := 0
	for {
		a, ok := t.queue.peek()
		if !ok || a.expiresAt.After(now) {
			return removed
		}
		t.queue.remove(a)
		parties := t.byKey[a.key]
		delete(parties, a.party)
		if len(parties) == 0 {
			delete(t.byKey, a.key)
		}
		t.count--
		removed++
	}
}

func (t *answerTable) len() int  { return t.count }
func (t *answerTable) keys() int { return len(t.byKey) }
