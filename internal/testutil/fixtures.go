// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes content to dir/name, creating parent directories, and
// returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// Script writes a gcsim script with one command per line and returns its
// path.
func Script(t testing.TB, dir, name string, lines ...string) string {
	t.Helper()
	return WriteFile(t, dir, name, strings.Join(lines, "\n")+"\n")
}

func ReadFile(t testing.TB, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

// FileExists reports whether p names an existing regular file.
func FileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
