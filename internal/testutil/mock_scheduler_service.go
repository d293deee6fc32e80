package testutil

import (
	"context"

	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockSchedulerService struct {
	mock.Mock
}

func (m *MockSchedulerService) Enqueue(
	ctx context.Context,
	repositoryID, triggerRevision, triggerKind string,
) (*store.Run, error) {
	args := m.Called(ctx, repositoryID, triggerRevision, triggerKind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), nil
}

func (m *MockSchedulerService) Cancel(ctx context.Context, runID int64) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockSchedulerService) CancelRepositoryRuns(
	ctx context.Context,
	repositoryID string,
) {
	m.Called(ctx, repositoryID)
}
