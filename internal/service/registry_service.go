package service

import (
	"context"
	"os"
	"path/filepath"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
)

type RegistryService struct {
	repositoryStore store.RepositoryStore
}

func NewRegistryService(repositoryStore store.RepositoryStore) *RegistryService {
	return &RegistryService{repositoryStore: repositoryStore}
}

// Register validates the working copy and durably records the repository.
// The returned repository carries its generated id; the id never changes
// afterwards.
func (s *RegistryService) Register(
	ctx context.Context,
	path, name, scriptPath string,
	pollIntervalSeconds int64,
) (*store.Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, NewValidationError("invalid path %s: %v", path, err)
	}
	if err := validateReadableDirectory(abs); err != nil {
		return nil, err
	}

	count, err := s.repositoryStore.CountEnabledRepositoriesByPath(ctx, abs)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, NewValidationError(
			"an enabled repository is already registered at %s", abs,
		)
	}

	if name == "" {
		name = filepath.Base(abs)
	}
	if scriptPath == "" {
		scriptPath = internal.DefaultScriptPath
	}
	if pollIntervalSeconds < 0 {
		return nil, NewValidationError("poll interval must not be negative")
	}

	r := &store.Repository{
		RepositoryID:        uuid.NewString(),
		Name:                name,
		Path:                abs,
		ScriptPath:          scriptPath,
		Enabled:             true,
		PollIntervalSeconds: pollIntervalSeconds,
	}
	if err := s.repositoryStore.CreateRepository(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Deregister removes the repository record. Run history is owned by the run
// store and is left untouched.
func (s *RegistryService) Deregister(ctx context.Context, id string) (*store.Repository, error) {
	r, err := s.GetRepositoryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repositoryStore.DeleteRepository(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RegistryService) GetRepositoryByID(
	ctx context.Context,
	id string,
) (*store.Repository, error) {
	r, err := s.repositoryStore.ReadRepositoryByID(ctx, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, NotFoundError{Resource: "repository", ID: id}
		}
		return nil, err
	}
	return r, nil
}

func (s *RegistryService) ListRepositories(ctx context.Context) ([]*store.Repository, error) {
	return s.repositoryStore.ListRepositories(ctx)
}

func (s *RegistryService) ListEnabledRepositories(
	ctx context.Context,
) ([]*store.Repository, error) {
	return s.repositoryStore.ListEnabledRepositories(ctx)
}

func (s *RegistryService) SetRepositoryEnabled(
	ctx context.Context,
	id string,
	enabled bool,
) (*store.Repository, error) {
	r, err := s.GetRepositoryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Enabled == enabled {
		return r, nil
	}

	if enabled {
		// two enabled repositories must never share a working copy
		count, err := s.repositoryStore.CountEnabledRepositoriesByPath(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, NewValidationError(
				"an enabled repository is already registered at %s", r.Path,
			)
		}
		if err := validateReadableDirectory(r.Path); err != nil {
			return nil, err
		}
	}

	if err := s.repositoryStore.UpdateRepositoryEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	r.Enabled = enabled
	return r, nil
}

func (s *RegistryService) UpdateLastKnownRevision(
	ctx context.Context,
	id, revision string,
) error {
	return s.repositoryStore.UpdateLastKnownRevision(ctx, id, revision)
}

func validateReadableDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return NewValidationError("path %s is not readable: %v", path, err)
	}
	if !info.IsDir() {
		return NewValidationError("path %s is not a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return NewValidationError("path %s is not readable: %v", path, err)
	}
	f.Close()
	return nil
}
