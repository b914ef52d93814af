// Package limits provides centralized size limits for buffered file delivery.
// This ensures consistent validation across the file, transport and session layers.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxFileSize is the default limit for a single buffered file (16 MiB).
	DefaultMaxFileSize int64 = 16 << 20

	// MaxFileSize is the absolute maximum for a single buffered file (256 MiB).
	// Whole files are held in memory on both ends, twice on the sender
	// (raw and encoded), so this bounds per-transfer memory.
	MaxFileSize int64 = 256 << 20

	// MinFileSize is the smallest limit a configuration may set.
	MinFileSize int64 = 1

	// FrameOverhead is the room reserved in a transport frame for the
	// envelope, event name, file name, mime type and params.
	FrameOverhead = 64 << 10

	// MaxFrameSize is the largest transport frame accepted by readers.
	// Writers refuse larger frames, which JSON escaping of text payloads
	// or large params can produce near MaxFileSize.
	MaxFrameSize = (MaxFileSize+2)/3*4 + FrameOverhead
)

var (
	// ErrFileTooLarge indicates a file or payload exceeds the configured limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidLimit indicates a limit outside [MinFileSize, MaxFileSize]
	ErrInvalidLimit = errors.New("invalid size limit")
)

// EncodedLen returns the padded base64 length of n raw bytes.
func EncodedLen(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + 2) / 3 * 4
}

// ValidateLimit checks that a configured file size limit is within bounds.
func ValidateLimit(limit int64) error {
	if limit < MinFileSize || limit > MaxFileSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLimit, limit, MinFileSize, MaxFileSize)
	}
	return nil
}

// ValidateFileSize validates a raw file size against limit.
// Returns an error with context including the actual and maximum sizes.
func ValidateFileSize(size, limit int64) error {
	if size > limit {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, size, limit)
	}
	return nil
}

// ValidateEncodedSize validates the length of an encoded payload against the
// encoded form of limit. Text payloads are never longer than their base64
// form, so the same bound applies to both encodings.
func ValidateEncodedSize(encodedLen int, limit int64) error {
	if max := EncodedLen(limit); int64(encodedLen) > max {
		return fmt.Errorf("%w: encoded size %d exceeds limit %d", ErrFileTooLarge, encodedLen, max)
	}
	return nil
}
