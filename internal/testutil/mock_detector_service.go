package testutil

import (
	"context"

	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockDetectorService struct {
	mock.Mock
}

func (m *MockDetectorService) Watch(repository *store.Repository) error {
	args := m.Called(repository)
	return args.Error(0)
}

func (m *MockDetectorService) Unwatch(repositoryID string) {
	m.Called(repositoryID)
}

func (m *MockDetectorService) Nudge(ctx context.Context, repositoryID string) {
	m.Called(ctx, repositoryID)
}
