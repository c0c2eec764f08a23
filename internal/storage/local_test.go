package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engine-gc/pkg/config"
	apperrors "github.com/engine-gc/pkg/errors"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("CreatesDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storage")

		storage, err := NewLocalStorage(path)
		require.NoError(t, err)
		assert.Equal(t, path, storage.GetBasePath())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("DefaultPath", func(t *testing.T) {
		origDir, err := os.Getwd()
		require.NoError(t, err)
		defer os.Chdir(origDir)
		require.NoError(t, os.Chdir(t.TempDir()))

		storage, err := NewLocalStorage("")
		require.NoError(t, err)
		assert.Equal(t, "./storage", storage.GetBasePath())
	})
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte(`{"run_id":"sim-1"}`)
	require.NoError(t, storage.Upload(ctx, "runs/sim-1/report.json", bytes.NewReader(content)))

	data, err := os.ReadFile(filepath.Join(tempDir, "runs", "sim-1", "report.json"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// Replacing leaves no temp files behind.
	require.NoError(t, storage.Upload(ctx, "runs/sim-1/report.json", bytes.NewReader([]byte("{}"))))
	entries, err := os.ReadDir(filepath.Join(tempDir, "runs", "sim-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	reader, err := storage.Download(ctx, "runs/sim-1/report.json")
	require.NoError(t, err)
	defer reader.Close()
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	_, err = storage.Download(ctx, "runs/missing.json")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalStorage_UploadFile(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(filepath.Join(tempDir, "store"))
	require.NoError(t, err)

	src := filepath.Join(tempDir, "heap.json.zst")
	require.NoError(t, os.WriteFile(src, []byte("snapshot bytes"), 0644))

	require.NoError(t, storage.UploadFile(context.Background(), "snap/heap.json.zst", src))
	ok, err := storage.Exists(context.Background(), "snap/heap.json.zst")
	require.NoError(t, err)
	assert.True(t, ok)

	err = storage.UploadFile(context.Background(), "x", filepath.Join(tempDir, "nonexistent"))
	assert.Error(t, err)
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, storage.Upload(ctx, "a.txt", bytes.NewReader(nil)), context.Canceled)
	_, err = storage.Download(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = storage.Exists(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, storage.Delete(ctx, "a.txt"), context.Canceled)
}

func TestLocalStorage_DeleteAndExists(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.Upload(ctx, "delete/test.txt", bytes.NewReader([]byte("x"))))
	require.NoError(t, storage.Delete(ctx, "delete/test.txt"))

	ok, err := storage.Exists(ctx, "delete/test.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, storage.Delete(ctx, "nonexistent.txt"))
}

func TestLocalStorage_Keys(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)

	tests := []struct {
		key  string
		want string
	}{
		{"path/to/file.txt", filepath.Join(tempDir, "path", "to", "file.txt")},
		{"/leading/slash.json", filepath.Join(tempDir, "leading", "slash.json")},
		{"a//b.json", filepath.Join(tempDir, "a", "b.json")},
		{"../escape.txt", ""},
		{"runs/../../etc/passwd", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.GetURL(tt.key))
		})
	}

	err = storage.Upload(context.Background(), "../escape.txt", bytes.NewReader(nil))
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestLocalStorage_List(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"runs/b/report.json", "runs/a/report.json", "runs/a/heap.json", "other.txt"} {
		require.NoError(t, storage.Upload(ctx, key, bytes.NewReader(nil)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "runs", "a", ".upload-123"), nil, 0o644))

	keys, err := storage.List(ctx, "runs/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a/heap.json", "runs/a/report.json"}, keys)

	keys, err = storage.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	keys, err = storage.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = storage.List(ctx, "../")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestNewStorage_Local(t *testing.T) {
	storage, err := NewStorage(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok := storage.(*LocalStorage)
	assert.True(t, ok)

	storage, err = NewStorage(&config.StorageConfig{LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok = storage.(*LocalStorage)
	assert.True(t, ok)
}
