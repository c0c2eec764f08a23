// Package writer encodes run reports and snapshots to JSON or YAML, optionally
// compressed, picking the format from the output file name.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/engine-gc/pkg/compression"
)

// Writer encodes a value of type T.
type Writer[T any] interface {
	Write(data T, w io.Writer) error
	WriteToFile(data T, path string) error
}

// Format is the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ForPath picks a writer from the file extension. A trailing .gz or .zst adds
// compression around the inner format, e.g. report.json.zst.
func ForPath[T any](path string, pretty bool) (Writer[T], error) {
	name := strings.ToLower(filepath.Base(path))
	ct := compression.TypeNone
	for _, t := range []compression.Type{compression.TypeGzip, compression.TypeZstd} {
		if strings.HasSuffix(name, t.Extension()) {
			ct = t
			name = strings.TrimSuffix(name, t.Extension())
			break
		}
	}

	var inner Writer[T]
	switch filepath.Ext(name) {
	case ".json":
		if pretty {
			inner = NewPrettyJSONWriter[T]()
		} else {
			inner = NewJSONWriter[T]()
		}
	case ".yaml", ".yml":
		inner = NewYAMLWriter[T]()
	default:
		return nil, fmt.Errorf("cannot infer output format from %q", path)
	}

	if ct == compression.TypeNone {
		return inner, nil
	}
	return NewCompressedWriter[T](inner, ct, compression.LevelDefault), nil
}

// writeFile writes through a temporary file in the same directory and
// renames it into place, so readers never see half a report. The directory
// must exist.
func writeFile(path string, fn func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
