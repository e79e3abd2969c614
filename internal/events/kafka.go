package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"swapkv/internal/model"
)

type KafkaConfig struct {
	// Brokers to publish to. Empty disables the broadcaster.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// Async makes Publish return without waiting for broker acknowledgement. Delivery
	// failures are then only logged.
	Async bool `mapstructure:"async"`
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Topic: "swapkv.events",
		Async: true,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// wireEvent is the JSON value of a published message. The message key is the raw swap
// key so all events of one exchange land on the same partition.
type wireEvent struct {
	V      int    `json:"v"`
	Seq    uint64 `json:"seq"`
	Type   string `json:"type"`
	Key    string `json:"key"`
	Party  string `json:"party"`
	Offset uint64 `json:"offset"`
	Chunks uint32 `json:"chunks"`
	At     int64  `json:"at_ms"`
}

type Broadcaster struct {
	writer messageWriter
	logger *zap.Logger
	seq    atomic.Uint64
}

type BroadcasterOpt func(*Broadcaster)

func WithBroadcasterLogger(logger *zap.Logger) BroadcasterOpt {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

func withWriter(w messageWriter) BroadcasterOpt {
	return func(b *Broadcaster) {
		b.writer = w
	}
}

func NewBroadcaster(cfg KafkaConfig, opts ...BroadcasterOpt) (*Broadcaster, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	b := &Broadcaster{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.writer == nil {
		b.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        cfg.Async,
			BatchTimeout: 10 * time.Millisecond,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					b.logger.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
				}
			},
		}
	}
	return b, nil
}

func (b *Broadcaster) Publish(ctx context.Context, ev model.Event) error {
	value, err := json.Marshal(wireEvent{
		V:      1,
		Seq:    b.seq.Add(1),
		Type:   ev.Type.String(),
		Key:    base64.URLEncoding.EncodeToString(ev.Key),
		Party:  base64.URLEncoding.EncodeToString(ev.Party),
		Offset: ev.Offset,
		Chunks: ev.Chunks,
		At:     ev.At.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Key: ev.Key, Value: value, Time: ev.At}); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

func (b *Broadcaster) Close() error {
	return b.writer.Close()
}
