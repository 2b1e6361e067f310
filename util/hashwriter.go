package util

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// A HashWriter wraps an io.Writer and also computes the 64-bit xxhash of the
// bytes written. The digest is used as a content hash, so it must be stable
// across runs and machines; it is not a cryptographic checksum.
type HashWriter struct {
	io.Writer // our io.MultiWriter, or just the digest
	digest    *xxhash.Digest
	n         int64
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{digest: xxhash.New()}
	hw.Writer = io.MultiWriter(w, hw.digest)
	return hw
}

// NewHashWriterPlain return a HashWriter that does not wrap an output stream.
// It will just compute the hash of the data written to it.
func NewHashWriterPlain() *HashWriter {
	hw := &HashWriter{digest: xxhash.New()}
	hw.Writer = hw.digest
	return hw
}

func (hw *HashWriter) Write(p []byte) (int, error) {
	n, err := hw.Writer.Write(p)
	hw.n += int64(n)
	return n, err
}

// Sum64 returns the hash of everything written so far.
func (hw *HashWriter) Sum64() uint64 {
	return hw.digest.Sum64()
}

// Size returns the number of bytes written so far.
func (hw *HashWriter) Size() int64 {
	return hw.n
}

// Check returns the hash for this writer, and compares it for equality with
// the goal passed in. A zero goal is treated as matching.
func (hw *HashWriter) Check(goal uint64) (uint64, bool) {
	computed := hw.digest.Sum64()
	return computed, goal == 0 || goal == computed
}

// VerifyStreamHash hashes the given io.Reader and compares the result against
// goal. The reader is not closed when finished.
func VerifyStreamHash(r io.Reader, goal uint64) (bool, error) {
	hw := NewHashWriterPlain()
	_, err := io.Copy(hw, r)
	_, ok := hw.Check(goal)
	return ok, err
}
