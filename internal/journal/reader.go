package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"swapkv/internal/model"
	"swapkv/internal/storage"
)

// Load reads every intact record of the journal at path. Reading stops at the first
// truncated or corrupted record, which is where a crash would have cut the file.
func Load(path string, logger *zap.Logger) ([]model.Event, error) {
	events := make([]model.Event, 0)
	err := scan(path, logger, func(payload []byte) error {
		ev, err := decodePayload(payload)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// lastSequence returns the sequence of the last intact record, 0 for a new journal.
func lastSequence(path string) uint64 {
	var last uint64
	_ = scan(path, zap.NewNop(), func(payload []byte) error {
		if len(payload) < seqNumBytes {
			return errors.New("payload too short")
		}
		last = binary.BigEndian.Uint64(payload)
		return nil
	})
	return last
}

func scan(path string, logger *zap.Logger, fn func(payload []byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()

	var offset int64
	records := 0
	for offset < size {
		header, err := storage.Read(f, offset, payloadLenBytes+checksumBytes)
		if err != nil {
			return err
		}
		if len(header) < payloadLenBytes+checksumBytes {
			logger.Warn("truncated journal header", zap.Int("record", records), zap.Int64("offset", offset))
			break
		}
		payloadLen := binary.BigEndian.Uint32(header)
		expected := binary.BigEndian.Uint32(header[payloadLenBytes:])
		offset += payloadLenBytes + checksumBytes

		if offset+int64(payloadLen) > size {
			logger.Warn("truncated journal payload",
				zap.Int("record", records),
				zap.Int64("offset", offset),
				zap.Uint32("expected_bytes", payloadLen),
			)
			break
		}
		payload, err := storage.Read(f, offset, int(payloadLen))
		if err != nil {
			return err
		}
		offset += int64(payloadLen)

		if actual := crc32.Checksum(payload, castagnoli); actual != expected {
			logger.Warn("journal checksum mismatch, stopping at corruption boundary",
				zap.Int("record", records),
				zap.Uint32("expected", expected),
				zap.Uint32("actual", actual),
			)
			break
		}
		if err := fn(payload); err != nil {
			logger.Warn("undecodable journal record, stopping", zap.Int("record", records), zap.Error(err))
			break
		}
		records++
	}
	logger.Debug("journal scanned", zap.Int("records", records), zap.Int64("bytes", size))
	return nil
}
