package file

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"

	"golang.org/x/crypto/blake2b"
)

// ChecksumParam is the params key carrying a payload's BLAKE2b-256 digest.
const ChecksumParam = "blake2b"

// ErrChecksumMismatch indicates decoded bytes that do not match the
// announced digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Checksum returns the hex BLAKE2b-256 digest of raw.
func Checksum(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// withChecksum returns a copy of params with the digest of raw added.
// The caller's map is not modified.
func withChecksum(params map[string]any, raw []byte) map[string]any {
	out := make(map[string]any, len(params)+1)
	maps.Copy(out, params)
	out[ChecksumParam] = Checksum(raw)
	return out
}

// verifyChecksum checks raw against the digest in params, if any. Packets
// without a digest pass.
func verifyChecksum(params map[string]any, raw []byte) error {
	value, ok := params[ChecksumParam]
	if !ok {
		return nil
	}
	want, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: %s param is %T, not a string", ErrChecksumMismatch, ChecksumParam, value)
	}
	if got := Checksum(raw); got != want {
		return fmt.Errorf("%w: got %s, announced %s", ErrChecksumMismatch, got, want)
	}
	return nil
}
