package storage

import (
	"bytes"
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/utils"
	"github.com/engine-gc/pkg/writer"
)

// Archive files run artifacts under <prefix>/<run id>/<name>.
type Archive struct {
	store  Storage
	prefix string
	log    utils.Logger
}

// NewArchive wraps store. log may be nil.
func NewArchive(store Storage, prefix string, log utils.Logger) *Archive {
	if log == nil {
		log = &utils.NullLogger{}
	}
	return &Archive{store: store, prefix: prefix, log: log}
}

// Key returns the object key of an artifact.
func (a *Archive) Key(runID, name string) string {
	return path.Join(a.prefix, runID, name)
}

// PublishFile uploads a local file next to the run's other artifacts and
// returns its URL.
func (a *Archive) PublishFile(ctx context.Context, runID, localPath string) (string, error) {
	key := a.Key(runID, filepath.Base(localPath))
	if err := a.store.UploadFile(ctx, key, localPath); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUploadError, "publish "+key, err)
	}
	a.log.Info("published %s", key)
	return a.store.GetURL(key), nil
}

// PublishReport encodes report as name, picking the format from its
// extension, and uploads it.
func (a *Archive) PublishReport(ctx context.Context, report *model.RunReport, name string) (string, error) {
	w, err := writer.ForPath[*model.RunReport](name, true)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "report name", err)
	}
	var buf bytes.Buffer
	if err := w.Write(report, &buf); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUploadError, "encode report", err)
	}

	key := a.Key(report.RunID, name)
	if err := a.store.Upload(ctx, key, &buf); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUploadError, "publish "+key, err)
	}
	a.log.Info("published %s", key)
	return a.store.GetURL(key), nil
}

// Fetch opens a previously published artifact.
func (a *Archive) Fetch(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	return a.store.Download(ctx, a.Key(runID, name))
}

// List returns the artifact names stored for a run.
func (a *Archive) List(ctx context.Context, runID string) ([]string, error) {
	dir := a.Key(runID, "") + "/"
	keys, err := a.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, dir))
	}
	return names, nil
}

// Purge deletes every artifact of a run and returns how many there were.
func (a *Archive) Purge(ctx context.Context, runID string) (int, error) {
	names, err := a.List(ctx, runID)
	if err != nil {
		return 0, err
	}
	if err := a.Remove(ctx, runID, names...); err != nil {
		return 0, err
	}
	a.log.Info("purged %d artifacts of %s", len(names), runID)
	return len(names), nil
}

// Remove deletes artifacts of a run, stopping at the first failure.
func (a *Archive) Remove(ctx context.Context, runID string, names ...string) error {
	for _, n := range names {
		if err := a.store.Delete(ctx, a.Key(runID, n)); err != nil {
			return err
		}
	}
	return nil
}
