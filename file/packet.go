package file

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/opd-ai/delivery/limits"
	"github.com/sirupsen/logrus"
)

// ErrUnreadable indicates the source of an outbound record could not be read.
var ErrUnreadable = errors.New("file unreadable")

// ErrDecode indicates an inbound payload is not valid base64 or UTF-8.
var ErrDecode = errors.New("malformed file payload")

// ErrInvalidText indicates a text-mode record whose bytes are not valid UTF-8.
var ErrInvalidText = errors.New("text payload is not valid UTF-8")

// ErrInvalidRecord indicates a record without a usable name or source.
var ErrInvalidRecord = errors.New("invalid file record")

// ErrInvalidBatch indicates a wire batch missing its uid or name.
var ErrInvalidBatch = errors.New("invalid file batch")

// ErrFileNameTooLong indicates that a file name exceeds the maximum allowed length.
var ErrFileNameTooLong = errors.New("file name too long")

// MaxFileNameLength is the maximum allowed file name length in bytes.
const MaxFileNameLength = 255

// Direction tells which side of a transfer built a packet.
type Direction uint8

const (
	// DirectionOutbound marks a packet built from a local Record.
	DirectionOutbound Direction = iota
	// DirectionInbound marks a packet built from a received Batch.
	DirectionInbound
)

// String returns the direction name used in logs.
func (d Direction) String() string {
	switch d {
	case DirectionOutbound:
		return "outbound"
	case DirectionInbound:
		return "inbound"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Record describes a file handed to the protocol by the application.
// Exactly one of Path and Data must be set.
type Record struct {
	// Name is the file name announced to the peer. Defaults to the base
	// name of Path.
	Name string

	// Path is the file on disk to read.
	Path string

	// Data is an in-memory payload used instead of Path.
	Data []byte

	// MimeType overrides the extension lookup when non-empty.
	MimeType string

	// IsText sends the payload as UTF-8 text instead of base64.
	IsText bool

	// Params is caller-defined metadata passed through unmodified.
	Params map[string]any

	// Checksum adds the payload's BLAKE2b-256 digest to the sent params
	// under ChecksumParam. Receivers verify it on decode.
	Checksum bool
}

// Batch is the wire form of a packet carried by the send.start event.
type Batch struct {
	UID      string         `json:"uid"`
	Name     string         `json:"name"`
	Size     int64          `json:"size"`
	Data     string         `json:"data"`
	IsText   bool           `json:"isText"`
	MimeType string         `json:"mimeType"`
	Prefix   string         `json:"prefix"`
	Params   map[string]any `json:"params,omitempty"`
}

// Packet is one file's protocol representation, keyed by UID.
type Packet struct {
	UID       string
	Direction Direction
	Name      string
	Size      int64
	MimeType  string
	IsText    bool
	Params    map[string]any

	// Data is the encoded payload: base64, or the text itself when IsText.
	Data string

	// Prefix is the data URL prefix of a binary payload.
	Prefix string

	// Path is the source file of an outbound packet.
	Path string

	// Raw holds the decoded bytes of an inbound packet.
	Raw []byte
}

// NewOutbound builds an outbound packet from rec and the bytes already read
// from its source. It assigns a fresh UID.
func NewOutbound(rec Record, raw []byte) (*Packet, error) {
	name, err := recordName(rec)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate uid: %w", err)
	}

	mimeType := rec.MimeType
	if mimeType == "" {
		source := rec.Path
		if source == "" {
			source = name
		}
		mimeType = LookupMimeType(source)
	}

	p := &Packet{
		UID:       id.String(),
		Direction: DirectionOutbound,
		Name:      name,
		Size:      int64(len(raw)),
		MimeType:  mimeType,
		IsText:    rec.IsText,
		Params:    rec.Params,
		Path:      rec.Path,
	}
	if rec.Checksum {
		p.Params = withChecksum(rec.Params, raw)
	}

	if p.IsText {
		text, err := EncodeText(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		p.Data = text
	} else {
		p.Data = EncodeBase64(raw)
		p.Prefix = DataPrefix(mimeType)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewOutbound",
		"uid":       p.UID,
		"file_name": p.Name,
		"file_size": p.Size,
		"mime_type": p.MimeType,
		"is_text":   p.IsText,
	}).Debug("Outbound packet encoded")

	return p, nil
}

// FromBatch builds an inbound packet from a received batch and decodes its
// payload. Encoded payloads longer than the encoded form of maxSize are
// rejected before decoding. The announced Size is copied as-is. A digest
// under ChecksumParam must match the decoded bytes.
func FromBatch(b Batch, maxSize int64) (*Packet, error) {
	if strings.TrimSpace(b.UID) == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidBatch)
	}
	if b.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidBatch)
	}
	if len(b.Name) > MaxFileNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(b.Name))
	}
	if err := validateEncoded(b.Data, maxSize); err != nil {
		return nil, err
	}

	p := &Packet{
		UID:       b.UID,
		Direction: DirectionInbound,
		Name:      b.Name,
		Size:      b.Size,
		MimeType:  b.MimeType,
		IsText:    b.IsText,
		Params:    b.Params,
		Data:      b.Data,
		Prefix:    b.Prefix,
	}

	var err error
	if p.IsText {
		p.Raw, err = DecodeText(b.Data)
	} else {
		p.Raw, err = DecodeBase64(b.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("uid %s: %w", b.UID, err)
	}
	if err := limits.ValidateFileSize(int64(len(p.Raw)), normalizeLimit(maxSize)); err != nil {
		return nil, fmt.Errorf("uid %s: %w", b.UID, err)
	}
	if err := verifyChecksum(p.Params, p.Raw); err != nil {
		return nil, fmt.Errorf("uid %s: %w", b.UID, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "FromBatch",
		"uid":          p.UID,
		"file_name":    p.Name,
		"file_size":    p.Size,
		"decoded_size": len(p.Raw),
		"is_text":      p.IsText,
	}).Debug("Inbound packet decoded")

	return p, nil
}

// Batch returns the wire form of the packet.
func (p *Packet) Batch() Batch {
	return Batch{
		UID:      p.UID,
		Name:     p.Name,
		Size:     p.Size,
		Data:     p.Data,
		IsText:   p.IsText,
		MimeType: p.MimeType,
		Prefix:   p.Prefix,
		Params:   p.Params,
	}
}

// IsImage reports whether the packet carries an image mime type.
func (p *Packet) IsImage() bool {
	return strings.HasPrefix(p.MimeType, "image/")
}

// DataURL returns the payload as a data URL. Text packets have no prefix
// and yield an empty string.
func (p *Packet) DataURL() string {
	if p.IsText || p.Prefix == "" {
		return ""
	}
	return p.Prefix + p.Data
}

func recordName(rec Record) (string, error) {
	if rec.Path == "" && rec.Data == nil {
		return "", fmt.Errorf("%w: no path or data", ErrInvalidRecord)
	}
	if rec.Path != "" && rec.Data != nil {
		return "", fmt.Errorf("%w: both path and data set", ErrInvalidRecord)
	}

	name := rec.Name
	if name == "" && rec.Path != "" {
		name = filepath.Base(rec.Path)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: missing name", ErrInvalidRecord)
	}
	if len(name) > MaxFileNameLength {
		return "", fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(name))
	}
	return name, nil
}
