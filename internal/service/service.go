// Package service is the only write entry point into the swap store. Transports call
// Swap; the service supplies the time, records metrics and publishes events.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"swapkv/internal/engine"
	"swapkv/internal/events"
	"swapkv/internal/logging"
	"swapkv/internal/metrics"
	"swapkv/internal/model"
)

type Store interface {
	SubmitOrRetrieve(req model.Request, now time.Time) (model.Result, error)
	Sweep(now time.Time) engine.SweepStats
	Stats() engine.Stats
}

type Config struct {
	// Interval of the full expiry sweep. Zero disables it, leaving cleanup to traffic.
	Interval time.Duration `mapstructure:"interval"`
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second}
}

type Opt func(*Service)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithSink(sink events.Sink) Opt {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithConfig(cfg Config) Opt {
	return func(s *Service) {
		s.cfg = cfg
	}
}

type Service struct {
	store  Store
	cfg    Config
	clock  clockwork.Clock
	sink   events.Sink
	logger *zap.Logger
}

func New(store Store, opts ...Opt) *Service {
	s := &Service{
		store:  store,
		cfg:    DefaultConfig(),
		clock:  clockwork.NewRealClock(),
		sink:   events.Nop{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Swap submits req at the current time. Errors wrap model.ErrConflict or
// model.ErrInvalidInput.
func (s *Service) Swap(ctx context.Context, req model.Request) (model.Result, error) {
	now := s.clock.Now()
	metrics.ChunksPerSubmission.WithLabelValues().Observe(float64(len(req.Values)))

	res, err := s.store.SubmitOrRetrieve(req, now)
	if err != nil {
		result := "invalid"
		if errors.Is(err, model.ErrConflict) {
			result = "conflict"
		}
		metrics.Requests.WithLabelValues(result).Inc()
		s.logger.Debug("swap rejected",
			logging.Bytes("key", req.Key),
			logging.Bytes("party", req.ID),
			zap.Uint64("offset", req.Offset),
			zap.Int("chunks", len(req.Values)),
			zap.Error(err),
		)
		return model.Result{}, err
	}
	metrics.Requests.WithLabelValues(res.Outcome.String()).Inc()
	s.logger.Debug("swap accepted",
		logging.Bytes("key", req.Key),
		logging.Bytes("party", req.ID),
		zap.Stringer("outcome", res.Outcome),
		zap.Uint64("offset", res.Offset),
	)

	// An empty first submission stores nothing, so there is nothing to report.
	if res.Outcome == model.OutcomeOffered && res.Offset == 0 {
		return res, nil
	}
	if err := s.sink.Publish(ctx, model.EventFromResult(res, now)); err != nil {
		metrics.SinkErrors.WithLabelValues().Inc()
		s.logger.Warn("event not published",
			zap.Stringer("type", res.Outcome),
			logging.Bytes("key", req.Key),
			zap.Error(err),
		)
	}
	return res, nil
}

// Run sweeps the whole store every configured interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.logger.Info("janitor disabled")
		<-ctx.Done()
		return nil
	}
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("janitor started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Sweep runs one full expiry pass and refreshes the live entry gauges.
func (s *Service) Sweep() engine.SweepStats {
	start := s.clock.Now()
	swept := s.store.Sweep(start)
	metrics.Expired.WithLabelValues("offer").Add(float64(swept.Offers))
	metrics.Expired.WithLabelValues("tombstone").Add(float64(swept.Tombstones))
	metrics.Expired.WithLabelValues("answer").Add(float64(swept.Answers))

	live := s.store.Stats()
	metrics.Live.WithLabelValues("offer").Set(float64(live.Offers))
	metrics.Live.WithLabelValues("tombstone").Set(float64(live.Tombstones))
	metrics.Live.WithLabelValues("answer").Set(float64(live.Answers))

	if !swept.Empty() {
		s.logger.Debug("janitor sweep",
			zap.Int("offers", swept.Offers),
			zap.Int("tombstones", swept.Tombstones),
			zap.Int("answers", swept.Answers),
			zap.Int("live_offers", live.Offers),
			zap.Int("live_answers", live.Answers),
		)
	}
	return swept
}
