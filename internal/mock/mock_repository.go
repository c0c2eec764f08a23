package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/pkg/model"
)

// MockRunRepository is a mock implementation of the repository.RunRepository
// interface.
type MockRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, report *model.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	args := m.Called(ctx, runID)
	return value[*model.RunReport](args, 0), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, filter repository.RunFilter) ([]*model.RunReport, error) {
	args := m.Called(ctx, filter)
	return value[[]*model.RunReport](args, 0), args.Error(1)
}

// DeleteRun mocks the DeleteRun method.
func (m *MockRunRepository) DeleteRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

// ExpectSaveRun sets up an expectation for saving the run called runID.
func (m *MockRunRepository) ExpectSaveRun(runID string, err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *model.RunReport) bool {
		return r != nil && r.RunID == runID
	})).Return(err)
}

var _ repository.RunRepository = (*MockRunRepository)(nil)
