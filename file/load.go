package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/delivery/limits"
	"github.com/sirupsen/logrus"
)

// Load reads rec's source and builds an outbound packet. The disk read runs
// on its own goroutine; Load returns ctx.Err() if ctx ends first. Sources
// larger than maxSize fail with limits.ErrFileTooLarge and unreadable files
// with ErrUnreadable. A non-positive maxSize selects limits.DefaultMaxFileSize.
func Load(ctx context.Context, rec Record, maxSize int64) (*Packet, error) {
	if maxSize <= 0 {
		maxSize = limits.DefaultMaxFileSize
	}

	if _, err := recordName(rec); err != nil {
		return nil, err
	}

	raw := rec.Data
	if rec.Path != "" {
		var err error
		raw, err = readFile(ctx, rec.Path, maxSize)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Load",
				"file_path": rec.Path,
				"error":     err.Error(),
			}).Error("Failed to read file for delivery")
			return nil, err
		}
	} else if err := limits.ValidateFileSize(int64(len(raw)), maxSize); err != nil {
		return nil, err
	}

	return NewOutbound(rec, raw)
}

type readResult struct {
	data []byte
	err  error
}

func readFile(ctx context.Context, path string, maxSize int64) ([]byte, error) {
	done := make(chan readResult, 1)
	go func() {
		data, err := readBounded(path, maxSize)
		done <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.data, res.err
	}
}

func readBounded(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	if err := limits.ValidateFileSize(info.Size(), maxSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// The file may grow between Stat and the read.
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := limits.ValidateFileSize(int64(len(data)), maxSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}
