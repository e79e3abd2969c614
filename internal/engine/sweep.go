package engine

import "time"

// SweepStats counts entries removed by expiry.
type SweepStats struct {
	Offers     int
	Tombstones int
	Answers    int
}

func (s SweepStats) Empty() bool {
	return s.Offers == 0 && s.Tombstones == 0 && s.Answers == 0
}

func (s *SweepStats) add(o SweepStats) {
	s.Offers += o.Offers
	s.Tombstones += o.Tombstones
	s.Answers += o.Answers
}

// sweepAnswers drops expired answers of key and reports whether none are left.
func (sh *shard) sweepAnswers(key string, now time.Time, st *SweepStats) bool {
	cleared, removed := sh.answers.removeExpired(key, now)
	st.Answers += removed
	return cleared
}

// sweepOffers walks offers in expiry order. Expired active offers are dropped. An expired
// tombstone is dropped only once its answers are gone; otherwise the walk stops, since
// every later entry expires no earlier than the blocked one.
func (sh *shard) sweepOffers(now time.Time, st *SweepStats) {
	for {
		o, ok := sh.offers.oldest()
		if !ok || o.expiresAt.After(now) {
			return
		}
		if o.tombstone() {
			if !sh.sweepAnswers(o.key, now, st) {
				return
			}
			st.Tombstones++
		} else {
			st.Offers++
		}
		sh.offers.remove(o.key)
	}
}

// sweepAll is the full pass used by the janitor: all expired answers of every key go
// first, which unblocks their tombstones, then the offer walk runs.
func (sh *shard) sweepAll(now time.Time, st *SweepStats) {
	st.Answers += sh.answers.removeAllExpired(now)
	sh.sweepOffers(now, st)
}
