package writer

import (
	"fmt"
	"io"
	"os"

	"github.com/engine-gc/pkg/compression"
)

// CompressedWriter streams another writer's output through a compressor.
type CompressedWriter[T any] struct {
	Inner       Writer[T]
	Compression compression.Type
	Level       compression.Level
}

// NewCompressedWriter wraps inner.
func NewCompressedWriter[T any](inner Writer[T], t compression.Type, level compression.Level) *CompressedWriter[T] {
	return &CompressedWriter[T]{Inner: inner, Compression: t, Level: level}
}

// NewGzipWriter creates a writer producing gzipped JSON.
func NewGzipWriter[T any]() *CompressedWriter[T] {
	return NewCompressedWriter[T](NewJSONWriter[T](), compression.TypeGzip, compression.LevelDefault)
}

// Write encodes data and compresses it into writer.
func (w *CompressedWriter[T]) Write(data T, writer io.Writer) error {
	comp, err := compression.New(w.Compression, w.Level)
	if err != nil {
		return err
	}
	defer compression.Close(comp)

	cw, err := comp.NewWriter(writer)
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", w.Compression, err)
	}
	if err := w.Inner.Write(data, cw); err != nil {
		cw.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return cw.Close()
}

// WriteToFile writes the compressed data to a file.
func (w *CompressedWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// WriteResult contains statistics about the written file.
type WriteResult struct {
	RawSize        int64
	CompressedSize int64
	CompressionPct float64
}

// countingWriter counts bytes on their way to the compressor.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteToFileWithStats writes and returns statistics about the output.
func (w *CompressedWriter[T]) WriteToFileWithStats(data T, path string) (*WriteResult, error) {
	comp, err := compression.New(w.Compression, w.Level)
	if err != nil {
		return nil, err
	}
	defer compression.Close(comp)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	cw, err := comp.NewWriter(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", w.Compression, err)
	}
	raw := &countingWriter{w: cw}
	if err := w.Inner.Write(data, raw); err != nil {
		cw.Close()
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", w.Compression, err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pct := 0.0
	if raw.n > 0 {
		pct = float64(fileInfo.Size()) / float64(raw.n) * 100
	}
	return &WriteResult{
		RawSize:        raw.n,
		CompressedSize: fileInfo.Size(),
		CompressionPct: pct,
	}, nil
}
