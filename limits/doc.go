// Package limits provides centralized size limits for file delivery.
//
// Files are buffered whole in memory on both ends of a transfer and travel
// base64-encoded inside a single transport message, so every layer needs
// to agree on how large a file may be before it is read from disk, encoded,
// framed, or decoded.
//
// # Size Hierarchy
//
//   - DefaultMaxFileSize (16 MiB): the per-session default for raw file
//     bytes. Sessions and the CLI may raise it up to MaxFileSize.
//
//   - MaxFileSize (256 MiB): the absolute ceiling for a buffered file.
//
//   - EncodedLen(n): the base64 length of n raw bytes. Inbound payloads are
//     checked against EncodedLen(limit) before decoding.
//
//   - MaxFrameSize: the largest transport frame a reader accepts; the
//     encoded payload of a MaxFileSize file plus FrameOverhead for the
//     envelope, file name and params.
//
// # Validation
//
//	if err := limits.ValidateFileSize(info.Size(), maxSize); err != nil {
//	    // errors.Is(err, limits.ErrFileTooLarge)
//	}
//
//	if err := limits.ValidateEncodedSize(len(batch.Data), maxSize); err != nil {
//	    // reject before decoding
//	}
package limits
