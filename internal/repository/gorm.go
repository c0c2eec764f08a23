package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
)

const cycleBatchSize = 200

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

func dbError(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeDatabaseError, op, err)
}

// SaveRun stores the report and its cycles in one transaction.
func (r *GormRunRepository) SaveRun(ctx context.Context, report *model.RunReport) error {
	if report.RunID == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "run has no id")
	}
	row, err := NewSimRun(report)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "encode totals", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", report.RunID).Delete(&SimCycle{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", report.RunID).Delete(&SimRun{}).Error; err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		if len(report.Cycles) == 0 {
			return nil
		}
		cycles := make([]SimCycle, len(report.Cycles))
		for i, c := range report.Cycles {
			cycles[i] = NewSimCycle(report.RunID, c)
		}
		return tx.CreateInBatches(cycles, cycleBatchSize).Error
	})
	if err != nil {
		return dbError("save run "+report.RunID, err)
	}
	return nil
}

// GetRun loads a report with its cycles in cycle order.
func (r *GormRunRepository) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var row SimRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %s", runID)
		}
		return nil, dbError("get run", err)
	}

	var cycles []SimCycle
	err = r.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&cycles).Error
	if err != nil {
		return nil, dbError("get cycles", err)
	}

	report := row.ToModel()
	for i := range cycles {
		report.Cycles = append(report.Cycles, cycles[i].ToModel())
	}
	return report, nil
}

// ListRuns returns matching runs, newest first.
func (r *GormRunRepository) ListRuns(ctx context.Context, filter RunFilter) ([]*model.RunReport, error) {
	q := r.db.WithContext(ctx).Model(&SimRun{})
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []SimRun
	if err := q.Order("started_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, dbError("list runs", err)
	}

	out := make([]*model.RunReport, len(rows))
	for i := range rows {
		out[i] = rows[i].ToModel()
	}
	return out, nil
}

// DeleteRun removes a run and its cycles.
func (r *GormRunRepository) DeleteRun(ctx context.Context, runID string) error {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&SimCycle{}).Error; err != nil {
			return err
		}
		res := tx.Where("run_id = ?", runID).Delete(&SimRun{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return dbError("delete run", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "run not found: %s", runID)
	}
	return nil
}
