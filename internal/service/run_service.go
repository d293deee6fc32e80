package service

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/multi-ci/internal/store"
)

// RunService is the read side of run history for the status API.
type RunService struct {
	runStore store.RunStore
}

func NewRunService(runStore store.RunStore) *RunService {
	return &RunService{runStore: runStore}
}

func (s *RunService) GetRunByID(ctx context.Context, id int64) (*store.Run, error) {
	r, err := s.runStore.ReadRunByID(ctx, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, NotFoundError{Resource: "run", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return r, nil
}

func (s *RunService) GetRunWithSteps(
	ctx context.Context,
	id int64,
) (*store.Run, []store.StepResult, error) {
	r, err := s.GetRunByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.runStore.ListStepResults(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return r, steps, nil
}

// GetLatestRepositoryRun returns nil without error when the repository has
// never run.
func (s *RunService) GetLatestRepositoryRun(
	ctx context.Context,
	repositoryID string,
) (*store.Run, error) {
	r, err := s.runStore.ReadLatestRepositoryRun(ctx, repositoryID)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (s *RunService) ListActiveRuns(ctx context.Context) ([]store.Run, error) {
	return s.runStore.ListActiveRuns(ctx)
}

func (s *RunService) ListRepositoryRunsPaginated(
	ctx context.Context,
	repositoryID string,
	limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListRepositoryRunsPaginated(ctx, repositoryID, limit, offset)
}

func (s *RunService) CountRepositoryRuns(
	ctx context.Context,
	repositoryID string,
) (int64, error) {
	return s.runStore.CountRepositoryRuns(ctx, repositoryID)
}
