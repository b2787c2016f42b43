package snapshot

import (
	"hash"
	"hash/crc32"
	"io"
)

// crc32Table is the IEEE polynomial table used for snapshot footers.
// CRC32 detects accidental corruption; it is not tamper-proof.
var crc32Table = crc32.MakeTable(crc32.IEEE)

// checksumWriter wraps an io.Writer and keeps a running CRC32 over
// everything written through it.
type checksumWriter struct {
	w    io.Writer
	hash hash.Hash32
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{
		w:    w,
		hash: crc32.New(crc32Table),
	}
}

func (cw *checksumWriter) Write(p []byte) (int, error) {
	if _, err := cw.hash.Write(p); err != nil {
		return 0, err
	}
	return cw.w.Write(p)
}

// Sum returns the checksum of everything written so far.
func (cw *checksumWriter) Sum() uint32 {
	return cw.hash.Sum32()
}

// checksumReader wraps an io.Reader and keeps a running CRC32 over
// everything read through it.
type checksumReader struct {
	r    io.Reader
	hash hash.Hash32
}

func newChecksumReader(r io.Reader) *checksumReader {
	return &checksumReader{
		r:    r,
		hash: crc32.New(crc32Table),
	}
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		if _, hashErr := cr.hash.Write(p[:n]); hashErr != nil {
			return n, hashErr
		}
	}
	return n, err
}

// Sum returns the checksum of everything read so far.
func (cr *checksumReader) Sum() uint32 {
	return cr.hash.Sum32()
}
