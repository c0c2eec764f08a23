// Package repository persists simulation runs and their collection cycles.
package repository

import (
	"context"

	"github.com/engine-gc/pkg/model"
)

// RunRepository defines the storage operations for run reports.
type RunRepository interface {
	// SaveRun stores the report and its cycles, replacing an earlier run
	// with the same RunID.
	SaveRun(ctx context.Context, report *model.RunReport) error

	// GetRun loads a report with its cycles.
	GetRun(ctx context.Context, runID string) (*model.RunReport, error)

	// ListRuns returns matching reports, newest first, without cycles.
	ListRuns(ctx context.Context, filter RunFilter) ([]*model.RunReport, error)

	// DeleteRun removes a run and its cycles.
	DeleteRun(ctx context.Context, runID string) error
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Name   string
	Status model.RunStatus
	Limit  int
}
