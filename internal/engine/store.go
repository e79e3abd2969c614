// Package engine implements the swap matching store: at most one pending offer per key,
// pairing with a second party, two independent answers per match, and lazy TTL expiry.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"swapkv/internal/logging"
	"swapkv/internal/model"
)

const (
	DefaultMaxTTL = 20 * time.Second
	DefaultShards = 64
)

type Config struct {
	// MaxTTL bounds every stored offer and answer. Requested TTLs of 0 or above it are
	// replaced by it.
	MaxTTL time.Duration `mapstructure:"max-ttl"`
	// Shards is the number of independently locked key neighborhoods.
	Shards int `mapstructure:"shards"`
}

func DefaultConfig() Config {
	return Config{
		MaxTTL: DefaultMaxTTL,
		Shards: DefaultShards,
	}
}

func (c Config) Validate() error {
	if c.MaxTTL < time.Second {
		return fmt.Errorf("max-ttl must be at least 1s, got %s", c.MaxTTL)
	}
	if c.Shards < 1 {
		return fmt.Errorf("shards must be positive, got %d", c.Shards)
	}
	return nil
}

type Opt func(*SwapStore)

func WithConfig(cfg Config) Opt {
	return func(s *SwapStore) {
		s.cfg = cfg
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(s *SwapStore) {
		s.logger = logger
	}
}

// shard is one key neighborhood. Every transition of its keys happens under mu.
type shard struct {
	mu      sync.Mutex
	seq     uint64
	offers  offerTable
	answers answerTable
}

func newShard() *shard {
	sh := &shard{}
	sh.offers = newOfferTable(&sh.seq)
	sh.answers = newAnswerTable(&sh.seq)
	return sh
}

// SwapStore is safe for concurrent use. Calls on keys of different shards run in parallel.
type SwapStore struct {
	cfg    Config
	logger *zap.Logger
	shards []*shard
}

func New(opts ...Opt) *SwapStore {
	s := &SwapStore{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Shards < 1 {
		s.cfg.Shards = 1
	}
	if s.cfg.MaxTTL < time.Second {
		s.cfg.MaxTTL = DefaultMaxTTL
	}
	s.shards = make([]*shard, s.cfg.Shards)
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func (s *SwapStore) shardFor(key []byte) *shard {
	return s.shards[xxhash.Sum64(key)%uint64(len(s.shards))]
}

// EffectiveTTL clamps a requested TTL in seconds to (0, MaxTTL].
func (s *SwapStore) EffectiveTTL(ttl uint32) uint32 {
	limit := uint32(s.cfg.MaxTTL / time.Second)
	if ttl == 0 || ttl > limit {
		return limit
	}
	return ttl
}

// SubmitOrRetrieve runs one rendezvous call for req at time now. Failures return
// model.ErrInvalidInput or model.ErrConflict and leave the store untouched.
func (s *SwapStore) SubmitOrRetrieve(req model.Request, now time.Time) (model.Result, error) {
	if now.IsZero() {
		return model.Result{}, fmt.Errorf("%w: zero timestamp", model.ErrInvalidInput)
	}
	ttl := s.EffectiveTTL(req.TTL)
	expiresAt := now.Add(time.Duration(ttl) * time.Second)
	key, id := string(req.Key), string(req.ID)

	sh := s.shardFor(req.Key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var swept SweepStats
	sh.sweepOffers(now, &swept)
	sh.sweepAnswers(key, now, &swept)
	if !swept.Empty() {
		s.logger.Debug("expired entries swept",
			zap.Int("offers", swept.Offers),
			zap.Int("tombstones", swept.Tombstones),
			zap.Int("answers", swept.Answers),
		)
	}

	res := model.Result{Key: req.Key, ID: req.ID}

	if ans, ok := sh.answers.get(key, id); ok {
		if !MatchesPrefix(ans.original, req.Offset, req.Values) {
			return model.Result{}, fmt.Errorf("%w: answer prefix mismatch at offset %d", model.ErrConflict, req.Offset)
		}
		res.Offset = uint64(len(ans.original))
		res.Values = ans.counterpart.Clone()
		res.Outcome = model.OutcomeRetrieved
		return res, nil
	}

	current, ok := sh.offers.get(key)
	if ok && current.tombstone() {
		sh.offers.remove(key)
		sh.sweepAnswers(key, now, &swept)
		ok = false
	}

	if !ok {
		if req.Offset != 0 {
			return model.Result{}, fmt.Errorf("%w: no exchange to resume at offset %d", model.ErrConflict, req.Offset)
		}
		if len(req.Values) > 0 {
			sh.offers.put(&offer{
				key:       key,
				kind:      offerActive,
				owner:     id,
				values:    req.Values.Clone(),
				expiresAt: expiresAt,
			})
		}
		res.Offset = uint64(len(req.Values))
		res.TTL = ttl
		res.Outcome = model.OutcomeOffered
		return res, nil
	}

	if current.owner == id {
		if !MatchesPrefix(current.values, req.Offset, req.Values) {
			return model.Result{}, fmt.Errorf("%w: offer prefix mismatch at offset %d", model.ErrConflict, req.Offset)
		}
		values := resume(current.values, req.Offset, req.Values)
		sh.offers.refresh(current, values, expiresAt)
		res.Offset = uint64(len(values))
		res.TTL = ttl
		res.Outcome = model.OutcomeAppended
		return res, nil
	}

	if req.Offset != 0 {
		return model.Result{}, fmt.Errorf("%w: counterpart must start at offset 0, got %d", model.ErrConflict, req.Offset)
	}
	mine := req.Values.Clone()
	theirs := current.values
	sh.answers.putPair(
		&answer{key: key, party: id, original: mine, counterpart: theirs, expiresAt: expiresAt},
		&answer{key: key, party: current.owner, original: theirs, counterpart: mine, expiresAt: expiresAt},
	)
	// Answers of an earlier pairing under key may outlive this one. The tombstone must
	// not expire before any of them, or it would block the offer walk of the shard.
	tombstoneExpiry := expiresAt
	if latest, ok := sh.answers.latestExpiry(key); ok && latest.After(tombstoneExpiry) {
		tombstoneExpiry = latest
	}
	sh.offers.put(&offer{key: key, kind: offerTombstone, expiresAt: tombstoneExpiry})

	s.logger.Debug("offer matched",
		logging.Bytes("key", req.Key),
		zap.Int("offered", len(theirs)),
		zap.Int("answered", len(mine)),
	)
	res.Offset = uint64(len(mine))
	res.Values = theirs.Clone()
	res.Outcome = model.OutcomeMatched
	return res, nil
}

// Sweep runs a full expiry pass over every shard. Keys that see no further traffic are
// only ever cleaned up here.
func (s *SwapStore) Sweep(now time.Time) SweepStats {
	var total SweepStats
	for _, sh := range s.shards {
		var st SweepStats
		sh.mu.Lock()
		sh.sweepAll(now, &st)
		sh.mu.Unlock()
		total.add(st)
	}
	return total
}

// Stats is a point-in-time count of live entries. Shards are visited one at a time so
// the totals are not a consistent snapshot under concurrent traffic.
type Stats struct {
	Offers     int
	Tombstones int
	Answers    int
	AnswerKeys int
}

func (s *SwapStore) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, o := range sh.offers.byKey {
			if o.tombstone() {
				st.Tombstones++
			} else {
				st.Offers++
			}
		}
		st.Answers += sh.answers.len()
		st.AnswerKeys += sh.answers.keys()
		sh.mu.Unlock()
	}
	return st
}
