package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/engine-gc/pkg/errors"
)

// LocalStorage keeps objects as files below a base directory. Uploads land
// through a temp file and a rename, so readers never see partial objects.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed. An empty root means ./storage.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "./storage"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "create storage directory "+root, err)
	}
	return &LocalStorage{root: root}, nil
}

// GetBasePath returns the storage root.
func (s *LocalStorage) GetBasePath() string { return s.root }

// resolve maps key below root. Keys that could escape it are rejected.
func (s *LocalStorage) resolve(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "invalid storage key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	dst, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "create "+dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "stage "+key, err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "write "+key, err)
	}
	return nil
}

func (s *LocalStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	return uploadFile(ctx, s, key, localPath)
}

func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, apperrors.Newf(apperrors.CodeNotFound, "file not found: %s", key)
	case err != nil:
		return nil, err
	}
	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.resolve(ctx, key)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(p); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List walks the directory holding prefix and returns every key that starts
// with it. Staged uploads are skipped.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(prefix, "..") {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "invalid storage prefix %q", prefix)
	}
	prefix = strings.TrimPrefix(prefix, "/")
	start := filepath.Join(s.root, filepath.FromSlash(path.Dir("/" + prefix)))

	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return ctx.Err()
	})
	sort.Strings(keys)
	return keys, err
}

// GetURL returns the file path of key, or "" for keys outside the root.
func (s *LocalStorage) GetURL(key string) string {
	p, err := s.resolve(context.Background(), key)
	if err != nil {
		return ""
	}
	return p
}

// uploadFile streams a local file through st.Upload.
func uploadFile(ctx context.Context, st Storage, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "open "+localPath, err)
	}
	defer f.Close()
	return st.Upload(ctx, key, f)
}
