package testutil

import (
	"context"

	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Register(
	ctx context.Context,
	path, name, scriptPath string,
	pollIntervalSeconds int64,
) (*store.Repository, error) {
	args := m.Called(ctx, path, name, scriptPath, pollIntervalSeconds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), nil
}

func (m *MockRegistryService) Deregister(
	ctx context.Context,
	id string,
) (*store.Repository, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), nil
}

func (m *MockRegistryService) GetRepositoryByID(
	ctx context.Context,
	id string,
) (*store.Repository, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), nil
}

func (m *MockRegistryService) ListRepositories(
	ctx context.Context,
) ([]*store.Repository, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Repository), nil
}

func (m *MockRegistryService) SetRepositoryEnabled(
	ctx context.Context,
	id string,
	enabled bool,
) (*store.Repository, error) {
	args := m.Called(ctx, id, enabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), nil
}
