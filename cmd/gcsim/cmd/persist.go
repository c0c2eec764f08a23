package cmd

import (
	"context"
	"fmt"

	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/internal/storage"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
)

// openRepositories fails with CONFIG_ERROR when no database is configured.
func openRepositories() (*repository.Repositories, error) {
	if !cfg.Database.Enabled {
		return nil, apperrors.New(apperrors.CodeConfigError, "database is disabled; set database.enabled")
	}
	return repository.Open(cfg.Database)
}

// saveReports records reports when a database is configured.
func saveReports(ctx context.Context, reports ...*model.RunReport) error {
	if !cfg.Database.Enabled {
		return nil
	}
	repos, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer repos.Close()
	return saveTo(ctx, repos.Runs, reports)
}

// saveTo stores reports in order and stops at the first failure.
func saveTo(ctx context.Context, runs repository.RunRepository, reports []*model.RunReport) error {
	for _, r := range reports {
		if err := runs.SaveRun(ctx, r); err != nil {
			return err
		}
		logger.Debug("saved run %s", r.RunID)
	}
	return nil
}

// openArchive opens the configured storage rooted at storage.prefix.
func openArchive() (*storage.Archive, error) {
	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	return storage.NewArchive(store, cfg.Storage.Prefix, logger), nil
}

// publishFiles uploads local artifacts under the run's key prefix.
func publishFiles(ctx context.Context, runID string, paths ...string) ([]string, error) {
	archive, err := openArchive()
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		u, err := archive.PublishFile(ctx, runID, p)
		if err != nil {
			return urls, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// publishReports uploads each report as report.json under its run.
func publishReports(ctx context.Context, reports []*model.RunReport) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	for _, r := range reports {
		u, err := archive.PublishReport(ctx, r, "report.json")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "uploaded %s\n", u)
	}
	return nil
}
