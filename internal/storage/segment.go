package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Note: journal files are single-writer. Readers only open them for dumps and for
// recovering the last sequence number at startup; nothing here coordinates concurrent
// writers.

// Write appends bytes to the given open file handle. Caller owns file lifecycle.
func Write(file *os.File, data []byte) error {
	writer := bufio.NewWriter(file)
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Read reads up to length bytes starting at offset. A short result means end of file.
func Read(file *os.File, offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf[:n], nil
}
