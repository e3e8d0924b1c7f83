// Package progress provides io.Reader wrappers used to observe streamed
// transfers: a running byte count for download/upload progress callbacks,
// and a running SHA-256 digest.
package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"sync/atomic"
)

// DigestReader wraps r, hashing every byte read as it passes through.
type DigestReader struct {
	r      io.Reader
	sha256 hash.Hash
}

func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{r: r, sha256: sha256.New()}
}

func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.sha256.Write(p[:n])
	}
	return n, err
}

// Drain reads any remaining bytes from the wrapped reader so the digest
// reflects the whole stream, for callers that only need the hash.
func (d *DigestReader) Drain() (int64, error) {
	return io.Copy(d.sha256, d.r)
}

func (d *DigestReader) SHA256Hex() string {
	return hex.EncodeToString(d.sha256.Sum(nil))
}

// CountingReader wraps r, tracking the cumulative byte count for a
// download or upload progress callback. Safe to read Count concurrently
// with Read.
type CountingReader struct {
	r     io.Reader
	count uint64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		atomic.AddUint64(&c.count, uint64(n))
	}
	return n, err
}

func (c *CountingReader) Count() uint64 {
	return atomic.LoadUint64(&c.count)
}
