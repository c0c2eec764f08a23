// Package storage uploads run reports and heap snapshots to local disk or
// Tencent Cloud COS.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/engine-gc/pkg/config"
	apperrors "github.com/engine-gc/pkg/errors"
)

// Storage is a flat object store addressed by slash separated keys.
// Missing objects are reported as NOT_FOUND.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	UploadFile(ctx context.Context, key string, localPath string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// GetURL returns where the object at key can be found.
	GetURL(key string) string
}

// StorageType names a backend in config.StorageConfig.Type.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

type backend struct {
	check func(cfg *config.StorageConfig) string
	open  func(cfg *config.StorageConfig) (Storage, error)
}

var backends = map[StorageType]backend{
	StorageTypeLocal: {
		check: func(cfg *config.StorageConfig) string {
			if cfg.LocalPath == "" {
				return "local storage path is required"
			}
			return ""
		},
		open: func(cfg *config.StorageConfig) (Storage, error) {
			return NewLocalStorage(cfg.LocalPath)
		},
	},
	StorageTypeCOS: {
		check: func(cfg *config.StorageConfig) string {
			switch {
			case cfg.Bucket == "":
				return "COS bucket is required"
			case cfg.Region == "":
				return "COS region is required"
			case cfg.SecretID == "" || cfg.SecretKey == "":
				return "COS credentials are required"
			}
			return ""
		},
		open: func(cfg *config.StorageConfig) (Storage, error) {
			return NewCOSStorage(&COSConfig{
				Bucket:    cfg.Bucket,
				Region:    cfg.Region,
				SecretID:  cfg.SecretID,
				SecretKey: cfg.SecretKey,
				Domain:    cfg.Domain,
				Scheme:    cfg.Scheme,
			})
		},
	},
}

func storageType(cfg *config.StorageConfig) StorageType {
	if cfg.Type == "" {
		return StorageTypeLocal
	}
	return StorageType(cfg.Type)
}

// NewStorage opens the backend cfg selects. An empty type means local.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return backends[storageType(cfg)].open(cfg)
}

// ValidateConfig reports the first problem with cfg as a CONFIG_ERROR.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}
	b, ok := backends[storageType(cfg)]
	if !ok {
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
	if msg := b.check(cfg); msg != "" {
		return apperrors.New(apperrors.CodeConfigError, msg)
	}
	if strings.Contains(cfg.Prefix, "..") {
		return apperrors.New(apperrors.CodeConfigError, "storage prefix must not contain '..'")
	}
	return nil
}

// ContentType guesses the MIME type of an artifact from its key.
func ContentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".gz":
		return "application/gzip"
	case ".zst":
		return "application/zstd"
	case ".gcs", ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
