// Package journal records swap events to an append-only file of CRC32C framed records.
// The journal is an audit trail; the store never reads it back.
package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"swapkv/internal/model"
	"swapkv/internal/storage"
)

var ErrClosed = errors.New("journal closed")

type Config struct {
	// Path of the journal file. Empty disables the journal.
	Path           string        `mapstructure:"path"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue-timeout"`
	FlushInterval  time.Duration `mapstructure:"flush-interval"`
	MaxEnqueuing   int           `mapstructure:"max-enqueuing"`
	BufferBytes    int           `mapstructure:"buffer-bytes"`
}

func DefaultConfig() Config {
	return Config{
		EnqueueTimeout: 500 * time.Millisecond,
		FlushInterval:  time.Second,
		MaxEnqueuing:   defaultMaxEnqueuing,
		BufferBytes:    defaultBufferBytes,
	}
}

type Opt func(*Journal)

func WithLogger(logger *zap.Logger) Opt {
	return func(j *Journal) {
		j.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(j *Journal) {
		j.clock = clock
	}
}

type flusher struct {
	segment        *os.File
	seq            uint64
	buffer         bytes.Buffer
	maxBufferBytes int
}

type appendMsg struct {
	event    model.Event
	buffered chan error
}

/*
Channel-backed append flow keeps a single writer goroutine in charge of the file:
- Ordering: the channel preserves request order and sequence numbers are assigned by the
  writer, so they are gap-free and follow file order.
- Backpressure: a bounded channel plus enqueue timeout lets callers give up instead of
  queueing without limit.
- Shutdown: Close cancels the writer, which flushes outstanding data before returning.
*/
type Journal struct {
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	flusher flusher
	appends chan appendMsg

	cancel context.CancelFunc
	done   chan struct{}
}

const (
	payloadLenBytes     = 4
	checksumBytes       = 4
	seqNumBytes         = 8
	typeBytes           = 1
	timestampBytes      = 8
	offsetBytes         = 8
	chunksBytes         = 4
	lenFieldSize        = 4
	defaultBufferBytes  = 4 * 1024 * 1024
	minimalBufferBytes  = 128
	defaultMaxEnqueuing = 1024
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Open appends to the journal at cfg.Path, continuing the sequence found in the file.
func Open(ctx context.Context, cfg Config, opts ...Opt) (*Journal, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal path is empty")
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	bufferBytes := cfg.BufferBytes
	if bufferBytes <= 0 {
		bufferBytes = defaultBufferBytes
	}
	if bufferBytes < minimalBufferBytes {
		bufferBytes = minimalBufferBytes
	}
	maxQueue := cfg.MaxEnqueuing
	if maxQueue <= 0 {
		maxQueue = defaultMaxEnqueuing
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultConfig().EnqueueTimeout
	}

	j := &Journal{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		appends: make(chan appendMsg, maxQueue),
		done:    make(chan struct{}),
		flusher: flusher{
			segment:        f,
			seq:            lastSequence(cfg.Path),
			maxBufferBytes: bufferBytes,
		},
	}
	for _, opt := range opts {
		opt(j)
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	ticker := j.clock.NewTicker(cfg.FlushInterval)
	go func() {
		defer close(j.done)
		j.run(runCtx, ticker)
		ticker.Stop()
		if err := j.flusher.flush(); err != nil {
			j.logger.Error("journal final flush", zap.Error(err))
		}
		if err := j.flusher.segment.Close(); err != nil {
			j.logger.Error("close journal", zap.Error(err))
		}
	}()
	return j, nil
}

// Append buffers ev and returns once the writer accepted it. Durability follows the
// flush interval or the buffer filling up.
func (j *Journal) Append(ev model.Event) error {
	msg := appendMsg{event: ev, buffered: make(chan error, 1)}
	timer := j.clock.NewTimer(j.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case j.appends <- msg:
	case <-j.done:
		return ErrClosed
	case <-timer.Chan():
		return fmt.Errorf("journal enqueue timed out after %s", j.cfg.EnqueueTimeout)
	}
	select {
	case err := <-msg.buffered:
		return err
	case <-j.done:
		return ErrClosed
	}
}

// Publish lets the journal act as an event sink.
func (j *Journal) Publish(_ context.Context, ev model.Event) error {
	return j.Append(ev)
}

// Close stops the writer and waits for the final flush.
func (j *Journal) Close() error {
	j.cancel()
	<-j.done
	return nil
}

func (j *Journal) run(ctx context.Context, ticker clockwork.Ticker) {
	for {
		select {
		case msg := <-j.appends:
			msg.buffered <- j.flusher.append(msg.event)
		case <-ticker.Chan():
			if err := j.flusher.flush(); err != nil {
				j.logger.Error("journal periodic flush", zap.Error(err))
			}
		case <-ctx.Done():
			// Drain what was already accepted into the queue.
			for {
				select {
				case msg := <-j.appends:
					msg.buffered <- j.flusher.append(msg.event)
				default:
					return
				}
			}
		}
	}
}

func (f *flusher) append(ev model.Event) error {
	ev.Sequence = f.seq + 1
	if err := f.write(encodeRecord(ev)); err != nil {
		return err
	}
	f.seq++
	return nil
}

func (f *flusher) write(data []byte) error {
	if f.segment == nil {
		return errors.New("no active segment")
	}
	if len(data) > f.maxBufferBytes {
		return fmt.Errorf("journal record (%d bytes) exceeds buffer size (%d bytes)", len(data), f.maxBufferBytes)
	}
	if f.buffer.Len()+len(data) > f.maxBufferBytes {
		if err := f.flush(); err != nil {
			return err
		}
	}
	_, err := f.buffer.Write(data)
	return err
}

func (f *flusher) flush() error {
	if f.segment == nil {
		return errors.New("no active segment")
	}
	if f.buffer.Len() == 0 {
		return nil
	}
	if err := storage.Write(f.segment, f.buffer.Bytes()); err != nil {
		return err
	}
	err := f.segment.Sync()
	if err == nil {
		f.buffer.Reset()
	}
	return err
}

/*
encodeRecord frames one event:

| PayloadLength | CRC32C  | Sequence | Type   | At (unix ns) | Offset  | Chunks  | KeyLen  | Key     | PartyLen | Party   |
|---------------|---------|----------|--------|--------------|---------|---------|---------|---------|----------|---------|
| 4 bytes       | 4 bytes | 8 bytes  | 1 byte | 8 bytes      | 8 bytes | 4 bytes | 4 bytes | K bytes | 4 bytes  | P bytes |

The checksum covers the payload, which runs from Sequence to Party.
*/
func encodeRecord(ev model.Event) []byte {
	size := seqNumBytes + typeBytes + timestampBytes + offsetBytes + chunksBytes +
		lenFieldSize + len(ev.Key) + lenFieldSize + len(ev.Party)
	record := make([]byte, payloadLenBytes+checksumBytes, payloadLenBytes+checksumBytes+size)
	record = binary.BigEndian.AppendUint64(record, ev.Sequence)
	record = append(record, byte(ev.Type))
	record = binary.BigEndian.AppendUint64(record, uint64(ev.At.UnixNano()))
	record = binary.BigEndian.AppendUint64(record, ev.Offset)
	record = binary.BigEndian.AppendUint32(record, ev.Chunks)
	record = binary.BigEndian.AppendUint32(record, uint32(len(ev.Key)))
	record = append(record, ev.Key...)
	record = binary.BigEndian.AppendUint32(record, uint32(len(ev.Party)))
	record = append(record, ev.Party...)

	payload := record[payloadLenBytes+checksumBytes:]
	binary.BigEndian.PutUint32(record[0:], uint32(len(payload)))
	binary.BigEndian.PutUint32(record[payloadLenBytes:], crc32.Checksum(payload, castagnoli))
	return record
}

func decodePayload(payload []byte) (model.Event, error) {
	fixed := seqNumBytes + typeBytes + timestampBytes + offsetBytes + chunksBytes + lenFieldSize
	if len(payload) < fixed+lenFieldSize {
		return model.Event{}, fmt.Errorf("payload too short: %d bytes", len(payload))
	}
	var ev model.Event
	pos := 0
	ev.Sequence = binary.BigEndian.Uint64(payload[pos:])
	pos += seqNumBytes
	ev.Type = model.Outcome(payload[pos])
	if ev.Type < model.OutcomeOffered || ev.Type > model.OutcomeRetrieved {
		return model.Event{}, fmt.Errorf("invalid event type: %d", payload[pos])
	}
	pos += typeBytes
	ev.At = time.Unix(0, int64(binary.BigEndian.Uint64(payload[pos:]))).UTC()
	pos += timestampBytes
	ev.Offset = binary.BigEndian.Uint64(payload[pos:])
	pos += offsetBytes
	ev.Chunks = binary.BigEndian.Uint32(payload[pos:])
	pos += chunksBytes

	key, pos, err := readBytes(payload, pos)
	if err != nil {
		return model.Event{}, fmt.Errorf("key: %w", err)
	}
	party, pos, err := readBytes(payload, pos)
	if err != nil {
		return model.Event{}, fmt.Errorf("party: %w", err)
	}
	if pos != len(payload) {
		return model.Event{}, fmt.Errorf("%d trailing bytes", len(payload)-pos)
	}
	ev.Key, ev.Party = key, party
	return ev, nil
}

func readBytes(payload []byte, pos int) ([]byte, int, error) {
	if pos+lenFieldSize > len(payload) {
		return nil, pos, errors.New("length field exceeds payload bounds")
	}
	n := int(binary.BigEndian.Uint32(payload[pos:]))
	pos += lenFieldSize
	if n > len(payload)-pos {
		return nil, pos, fmt.Errorf("length (%d) exceeds payload bounds", n)
	}
	out := make([]byte, n)
	copy(out, payload[pos:pos+n])
	return out, pos + n, nil
}
