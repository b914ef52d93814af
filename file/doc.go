// Package file implements the packet layer of file delivery: turning a
// local file into a self-contained, encoded wire batch and turning a
// received batch back into bytes.
//
// # Overview
//
// The package provides two directions of the same type:
//
//   - Outbound packets are built from a Record (a path on disk or an
//     in-memory payload) with Load or NewOutbound. They get a fresh random
//     UID, a mime type from the extension table, and an encoded payload.
//   - Inbound packets are built from a received Batch with FromBatch and
//     carry the decoded bytes in Raw.
//
// The Direction field tags which of the two a packet is; a packet is never
// both.
//
// # Encoding
//
// Binary payloads travel as padded standard base64 with a data URL prefix
// describing the content:
//
//	p, err := file.Load(ctx, file.Record{Path: "photo.png"}, 0)
//	// p.Prefix == "data:image/png;base64,"
//	// p.DataURL() can be used directly as an <img> source
//
// Text payloads (Record.IsText) travel as the UTF-8 text itself, with no
// prefix. Bytes that are not valid UTF-8 are rejected with ErrInvalidText.
//
// # Loading
//
// Load is the only blocking step of a send. The read runs on a separate
// goroutine and Load honours context cancellation:
//
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	p, err := file.Load(ctx, file.Record{Path: path}, limits.DefaultMaxFileSize)
//	if errors.Is(err, file.ErrUnreadable) {
//	    // missing file, permissions, ...
//	}
//
// Whole files are buffered in memory; the limits package bounds them.
//
// # Error Handling
//
// The package provides sentinel errors for common failure modes:
//
//	var (
//	    ErrUnreadable          // outbound source could not be read
//	    ErrDecode              // inbound payload is not valid base64/UTF-8
//	    ErrInvalidText         // text-mode record is not valid UTF-8
//	    ErrInvalidRecord       // record without name or source
//	    ErrInvalidBatch        // batch without uid or name
//	    ErrDirectoryTraversal  // Save target escapes the directory
//	)
//
// All errors are wrapped with context for debugging.
package file
