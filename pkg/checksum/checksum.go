// Package checksum computes the SHA-256 digests recorded for every stored
// evidence archive. All storage backends go through it so that checksums are
// encoded the same way regardless of where the archive lives.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Sum returns the hex-encoded SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	w := NewWriter(io.Discard)
	if _, err := io.Copy(w, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return w.Sum(), nil
}

// Writer passes writes through to an underlying writer while hashing them.
type Writer struct {
	w io.Writer
	h hash.Hash
	n int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: sha256.New()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.h.Write(p[:n])
	cw.n += int64(n)
	return n, err
}

// Sum returns the hex-encoded SHA-256 of everything written so far.
func (cw *Writer) Sum() string {
	return hex.EncodeToString(cw.h.Sum(nil))
}

// Written reports the number of bytes passed through.
func (cw *Writer) Written() int64 {
	return cw.n
}
