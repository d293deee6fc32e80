package testutil

import (
	"context"

	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) GetRunWithSteps(
	ctx context.Context,
	id int64,
) (*store.Run, []store.StepResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var steps []store.StepResult
	if args.Get(1) != nil {
		steps = args.Get(1).([]store.StepResult)
	}
	return args.Get(0).(*store.Run), steps, nil
}

func (m *MockRunService) GetLatestRepositoryRun(
	ctx context.Context,
	repositoryID string,
) (*store.Run, error) {
	args := m.Called(ctx, repositoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), nil
}

func (m *MockRunService) ListActiveRuns(ctx context.Context) ([]store.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), nil
}

func (m *MockRunService) ListRepositoryRunsPaginated(
	ctx context.Context,
	repositoryID string,
	limit, offset int64,
) ([]store.Run, error) {
	args := m.Called(ctx, repositoryID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), nil
}

func (m *MockRunService) CountRepositoryRuns(
	ctx context.Context,
	repositoryID string,
) (int64, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).(int64), args.Error(1)
}
