// Package snapshot serializes the full contents of a store into a single
// self-describing stream and restores it later, on this machine or another.
//
// Layout, all integers little-endian:
//
//	[magic uint32][version uint16]
//	[headerLen uint32][header JSON]
//	row blocks: [UncompressedSize uint32][CompressedSize uint32][data]
//	[0 uint32][0 uint32]   end of row stream
//	[rows uint64]
//	[crc32 uint32]         IEEE, over all preceding bytes
//
// Blocks hold length-prefixed rows encoded with the codec named in the
// header; a row never spans two blocks. The header itself is always plain
// JSON so a reader can decode it before resolving the row codec.
package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/coocgo/codec"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/resource"
)

const (
	snapMagic   uint32 = 0x434f4f43 // "COOC"
	snapVersion uint16 = 1

	defaultBlockSize = 256 * 1024
	maxHeaderSize    = 4096
)

var (
	// ErrBadSnapshot is returned when the stream is not a snapshot or is
	// structurally damaged.
	ErrBadSnapshot = errors.New("snapshot: malformed stream")

	// ErrUnsupportedVersion is returned when the snapshot was written by a
	// newer format version than this build understands.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")

	// ErrUnknownCodec is returned when the header names a codec this build
	// does not provide.
	ErrUnknownCodec = errors.New("snapshot: unknown codec")

	// ErrUnknownCompression is returned when the header names an unknown
	// compression scheme.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")

	// ErrChecksum is returned when the stored CRC32 does not match the
	// bytes read.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
)

// header is the self-describing preamble of a snapshot stream.
type header struct {
	Codec       string `json:"codec"`
	Compression string `json:"compression"`
}

// row is the serialized form of one store row.
type row struct {
	Key        string   `json:"k"`
	Count      float64  `json:"n"`
	Mean       float64  `json:"m,omitempty"`
	Confidence float64  `json:"c,omitempty"`
	Refs       []string `json:"r,omitempty"`
}

// Report summarizes one snapshot write or restore.
type Report struct {
	// Rows is the number of store rows streamed.
	Rows int
	// Bytes is the number of bytes that crossed the underlying stream.
	Bytes int64
	// Elapsed is the wall time the operation took.
	Elapsed time.Duration
}

type options struct {
	codec       codec.Codec
	compression Compression
	blockSize   int
	controller  *resource.Controller
}

// Option configures Write and Read.
type Option func(*options)

// WithCodec sets the row codec for Write. Read ignores this and resolves
// the codec named in the header.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithCompression sets the block compression for Write. Read ignores this
// and follows the header.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBlockSize sets the uncompressed size at which a row block is flushed.
func WithBlockSize(n int) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithController throttles the byte stream through the controller's IO
// budget. A nil controller leaves the stream unthrottled.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(optFns []Option) options {
	opts := options{
		codec:       codec.Default,
		compression: CompressionZSTD,
		blockSize:   defaultBlockSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.codec == nil {
		opts.codec = codec.Default
	}
	if opts.blockSize <= 0 {
		opts.blockSize = defaultBlockSize
	}
	return opts
}

// Write streams every row of the store into w. The resulting stream is
// restored with Read. Write does not mutate the store, but rows written
// concurrently with the scan may or may not be included.
func Write(ctx context.Context, w io.Writer, store graphstore.Store, optFns ...Option) (Report, error) {
	opts := applyOptions(optFns)
	start := time.Now()

	cnt := &countingWriter{w: w}
	lw := resource.NewRateLimitedWriter(ctx, cnt, opts.controller)
	cw := newChecksumWriter(lw)

	if err := writeHeader(cw, opts); err != nil {
		return Report{}, err
	}

	var (
		rows   int
		block  = make([]byte, 0, opts.blockSize+binary.MaxVarintLen64)
		lenBuf [binary.MaxVarintLen64]byte
	)

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		frame, err := compressBlock(block, opts.compression)
		if err != nil {
			return err
		}
		if _, err := cw.Write(frame); err != nil {
			return err
		}
		block = block[:0]
		return nil
	}

	err := store.Scan(ctx, "", func(stored graphstore.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := opts.codec.Marshal(row{
			Key:        stored.Key,
			Count:      stored.Value.Count,
			Mean:       stored.Value.Mean,
			Confidence: stored.Value.Confidence,
			Refs:       stored.Refs,
		})
		if err != nil {
			return err
		}

		// Flush first so a record never spans two blocks.
		if len(block) > 0 && len(block)+len(rec)+binary.MaxVarintLen64 > opts.blockSize {
			if err := flush(); err != nil {
				return err
			}
		}

		n := binary.PutUvarint(lenBuf[:], uint64(len(rec)))
		block = append(block, lenBuf[:n]...)
		block = append(block, rec...)
		rows++
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	if err := flush(); err != nil {
		return Report{}, err
	}

	var term [blockHeaderSize]byte
	if _, err := cw.Write(term[:]); err != nil {
		return Report{}, err
	}

	var rowBuf [8]byte
	binary.LittleEndian.PutUint64(rowBuf[:], uint64(rows))
	if _, err := cw.Write(rowBuf[:]); err != nil {
		return Report{}, err
	}

	// The checksum itself is written past the checksummed region.
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], cw.Sum())
	if _, err := lw.Write(crcBuf[:]); err != nil {
		return Report{}, err
	}

	return Report{Rows: rows, Bytes: cnt.n, Elapsed: time.Since(start)}, nil
}

// Read restores a snapshot stream into the store. Existing rows with the
// same keys are overwritten; rows absent from the snapshot are left alone,
// so restores normally target an empty store.
func Read(ctx context.Context, r io.Reader, store graphstore.Store, optFns ...Option) (Report, error) {
	opts := applyOptions(optFns)
	start := time.Now()

	cnt := &countingReader{r: r}
	lr := resource.NewRateLimitedReader(ctx, cnt, opts.controller)
	cr := newChecksumReader(lr)

	rowCodec, compression, err := readHeader(cr)
	if err != nil {
		return Report{}, err
	}

	var rows int
	for {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		var frame [blockHeaderSize]byte
		if _, err := io.ReadFull(cr, frame[:]); err != nil {
			return Report{}, fmt.Errorf("%w: truncated block header: %v", ErrBadSnapshot, err)
		}
		uncompressedSize := binary.LittleEndian.Uint32(frame[0:])
		compressedSize := binary.LittleEndian.Uint32(frame[4:])
		if uncompressedSize == 0 && compressedSize == 0 {
			break
		}

		payloadSize := compressedSize
		if payloadSize == 0 {
			payloadSize = uncompressedSize
		}
		payload := make([]byte, payloadSize)
		if _, err := io.ReadFull(cr, payload); err != nil {
			return Report{}, fmt.Errorf("%w: truncated block: %v", ErrBadSnapshot, err)
		}

		block, err := decompressBlock(payload, uncompressedSize, compressedSize, compression)
		if err != nil {
			return Report{}, err
		}

		n, err := restoreBlock(ctx, store, rowCodec, block)
		if err != nil {
			return Report{}, err
		}
		rows += n
	}

	var rowBuf [8]byte
	if _, err := io.ReadFull(cr, rowBuf[:]); err != nil {
		return Report{}, fmt.Errorf("%w: truncated row count: %v", ErrBadSnapshot, err)
	}
	if want := binary.LittleEndian.Uint64(rowBuf[:]); want != uint64(rows) {
		return Report{}, fmt.Errorf("%w: restored %d rows, trailer claims %d", ErrBadSnapshot, rows, want)
	}

	sum := cr.Sum()
	var crcBuf [4]byte
	if _, err := io.ReadFull(lr, crcBuf[:]); err != nil {
		return Report{}, fmt.Errorf("%w: truncated checksum: %v", ErrBadSnapshot, err)
	}
	if stored := binary.LittleEndian.Uint32(crcBuf[:]); stored != sum {
		return Report{}, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, sum)
	}

	return Report{Rows: rows, Bytes: cnt.n, Elapsed: time.Since(start)}, nil
}

func writeHeader(w io.Writer, opts options) error {
	hdr, err := codec.JSON{}.Marshal(header{
		Codec:       opts.codec.Name(),
		Compression: opts.compression.String(),
	})
	if err != nil {
		return err
	}

	buf := make([]byte, 0, 10+len(hdr))
	buf = binary.LittleEndian.AppendUint32(buf, snapMagic)
	buf = binary.LittleEndian.AppendUint16(buf, snapVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(hdr)))
	buf = append(buf, hdr...)

	_, err = w.Write(buf)
	return err
}

func readHeader(r io.Reader) (codec.Codec, Compression, error) {
	var pre [10]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated preamble: %v", ErrBadSnapshot, err)
	}
	if m := binary.LittleEndian.Uint32(pre[0:]); m != snapMagic {
		return nil, 0, fmt.Errorf("%w: bad magic 0x%08x", ErrBadSnapshot, m)
	}
	if v := binary.LittleEndian.Uint16(pre[4:]); v > snapVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	hdrLen := binary.LittleEndian.Uint32(pre[6:])
	if hdrLen == 0 || hdrLen > maxHeaderSize {
		return nil, 0, fmt.Errorf("%w: header length %d", ErrBadSnapshot, hdrLen)
	}

	raw := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated header: %v", ErrBadSnapshot, err)
	}

	var hdr header
	if err := (codec.JSON{}).Unmarshal(raw, &hdr); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	rowCodec, ok := codec.ByName(hdr.Codec)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownCodec, hdr.Codec)
	}
	compression, ok := compressionByName(hdr.Compression)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownCompression, hdr.Compression)
	}
	return rowCodec, compression, nil
}

func restoreBlock(ctx context.Context, store graphstore.Store, rowCodec codec.Codec, block []byte) (int, error) {
	rows := 0
	for off := 0; off < len(block); {
		recLen, n := binary.Uvarint(block[off:])
		if n <= 0 {
			return rows, fmt.Errorf("%w: bad record length", ErrBadSnapshot)
		}
		off += n
		if recLen > uint64(len(block)-off) {
			return rows, fmt.Errorf("%w: record extends past block end", ErrBadSnapshot)
		}
		end := off + int(recLen)

		var rec row
		if err := rowCodec.Unmarshal(block[off:end], &rec); err != nil {
			return rows, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
		off = end

		if err := store.Create(ctx, rec.Key, rec.Refs...); err != nil {
			return rows, err
		}
		if err := store.SetValue(ctx, rec.Key, graphstore.Value{
			Mean:       rec.Mean,
			Confidence: rec.Confidence,
			Count:      rec.Count,
		}); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
