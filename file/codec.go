package file

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opd-ai/delivery/limits"
)

const base64Marker = "base64,"

// DataPrefix returns the data URL prefix for a binary payload of mimeType.
// An empty mime type omits the type segment.
func DataPrefix(mimeType string) string {
	if mimeType == "" {
		return "data:" + base64Marker
	}
	return "data:" + mimeType + ";" + base64Marker
}

// EncodeBase64 encodes raw bytes with the padded standard alphabet.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBase64 decodes a base64 payload. A leading data URL prefix, as
// produced by browser FileReader.readAsDataURL, is stripped first.
func DecodeBase64(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, base64Marker); i >= 0 {
			data = data[i+len(base64Marker):]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return raw, nil
}

// EncodeText returns raw as text. Bytes that are not valid UTF-8 cannot
// survive a JSON transport and are rejected.
func EncodeText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", ErrInvalidText
	}
	return string(raw), nil
}

// DecodeText returns the UTF-8 bytes of a text payload.
func DecodeText(data string) ([]byte, error) {
	if !utf8.ValidString(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8 text", ErrDecode)
	}
	return []byte(data), nil
}

func validateEncoded(data string, maxSize int64) error {
	return limits.ValidateEncodedSize(len(data), normalizeLimit(maxSize))
}

func normalizeLimit(maxSize int64) int64 {
	if maxSize <= 0 {
		return limits.DefaultMaxFileSize
	}
	return maxSize
}
