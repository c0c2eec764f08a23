package writer

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// YAMLWriter writes data as a YAML document. Field names follow the yaml
// struct tags.
type YAMLWriter[T any] struct{}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter[T any]() *YAMLWriter[T] {
	return &YAMLWriter[T]{}
}

// Write writes the data as YAML to the writer.
func (w *YAMLWriter[T]) Write(data T, writer io.Writer) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}
	_, err = writer.Write(out)
	return err
}

// WriteToFile writes the data as YAML to a file.
func (w *YAMLWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}
