package writer

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter encodes T as one JSON document. Class names such as
// "Hud<Widget>" are written as is, without HTML escaping.
type JSONWriter[T any] struct {
	// Indent is the per-level indentation; empty means one line.
	Indent string
}

// NewJSONWriter creates a compact JSON writer, used for snapshots.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates an indented JSON writer, used for reports.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

func (w *JSONWriter[T]) Write(data T, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if w.Indent != "" {
		enc.SetIndent("", w.Indent)
	}
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func (w *JSONWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}
