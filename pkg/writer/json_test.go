package writer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testData struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

func TestJSONWriter_Write(t *testing.T) {
	data := testData{Name: "Hud<Widget>", Value: 42}

	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter[testData]().Write(data, &buf))
	assert.Equal(t, `{"name":"Hud<Widget>","value":42}`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrettyJSONWriter[testData]().Write(data, &buf))
	assert.Contains(t, buf.String(), "\n  \"name\": \"Hud<Widget>\"")
	var decoded testData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, data, decoded)

	err := NewJSONWriter[chan int]().Write(make(chan int), &buf)
	assert.ErrorContains(t, err, "failed to encode json")
}

func TestJSONWriter_WriteToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	w := NewJSONWriter[testData]()

	require.NoError(t, w.WriteToFile(testData{Name: "first", Value: 1}, path))
	require.NoError(t, w.WriteToFile(testData{Name: "second", Value: 2}, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded testData
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, "second", decoded.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestJSONWriter_FailedWriteKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	err := NewJSONWriter[chan int]().WriteToFile(make(chan int), path)
	require.Error(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(content))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONWriter_WriteToFileMissingDir(t *testing.T) {
	err := NewJSONWriter[testData]().WriteToFile(testData{}, filepath.Join(t.TempDir(), "missing", "x.json"))
	assert.Error(t, err)
}
