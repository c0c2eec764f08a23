// Package compression wraps gzip and zstd behind one interface for snapshot
// and report output.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Type identifies a compression algorithm.
type Type uint8

const (
	TypeNone Type = iota
	TypeGzip
	TypeZstd
)

// String returns the algorithm name.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file suffix for the algorithm, with the dot.
func (t Type) Extension() string {
	switch t {
	case TypeGzip:
		return ".gz"
	case TypeZstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseType maps a name or file suffix onto a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "none":
		return TypeNone, nil
	case "gzip", "gz":
		return TypeGzip, nil
	case "zstd", "zst":
		return TypeZstd, nil
	default:
		return TypeNone, fmt.Errorf("unknown compression %q", s)
	}
}

// Level trades speed for ratio.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

// Compressor compresses whole buffers and wraps streams.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// NewWriter wraps w; the caller must Close the result to flush it.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	Type() Type
}

// New creates a compressor for t.
func New(t Type, level Level) (Compressor, error) {
	switch t {
	case TypeGzip:
		return &gzipCompressor{level: gzipLevel(level)}, nil
	case TypeZstd:
		return newZstd(level)
	case TypeNone:
		return noneCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

func gzipLevel(level Level) int {
	switch level {
	case LevelFastest:
		return gzip.BestSpeed
	case LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

type gzipCompressor struct {
	level int
}

func (c *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *gzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	gw, err := gzip.NewWriterLevel(w, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return gw, nil
}

func (c *gzipCompressor) Type() Type { return TypeGzip }

// ZstdCompressor holds a reusable encoder and decoder. Close releases them.
type ZstdCompressor struct {
	level   zstd.EncoderLevel
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstd(level Level) (*ZstdCompressor, error) {
	zl := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		zl = zstd.SpeedFastest
	case LevelBest:
		zl = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zl))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompressor{level: zl, encoder: enc, decoder: dec}, nil
}

// Compress implements Compressor.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress implements Compressor.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

// NewWriter implements Compressor with a fresh streaming encoder.
func (c *ZstdCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc, nil
}

// Type implements Compressor.
func (c *ZstdCompressor) Type() Type { return TypeZstd }

// Close releases the encoder and decoder.
func (c *ZstdCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Type() Type                             { return TypeNone }

func (noneCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopCloser{w}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Close releases a compressor's resources when it holds any.
func Close(c Compressor) {
	if z, ok := c.(*ZstdCompressor); ok {
		z.Close()
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// DetectType sniffs the magic bytes.
func DetectType(data []byte) Type {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return TypeZstd
	case bytes.HasPrefix(data, gzipMagic):
		return TypeGzip
	default:
		return TypeNone
	}
}

// AutoDecompress decompresses data according to its magic bytes. Data
// without a known header is returned as is.
func AutoDecompress(data []byte) ([]byte, error) {
	c, err := New(DetectType(data), LevelDefault)
	if err != nil {
		return nil, err
	}
	defer Close(c)
	return c.Decompress(data)
}
