package store

import (
	"context"
	"time"
)

type Repository struct {
	RepositoryID        string `param:"repository_id"`
	Name                string
	Path                string
	ScriptPath          string
	Enabled             bool
	PollIntervalSeconds int64
	LastKnownRevision   *string
	CreatedOn           time.Time
}

type RepositoryWriter interface {
	CreateRepository(context.Context, *Repository) error
	UpdateRepositoryEnabled(context.Context, string, bool) error
	UpdateLastKnownRevision(context.Context, string, string) error
	DeleteRepository(context.Context, string) error
}

type RepositoryReader interface {
	ReadRepositoryByID(context.Context, string) (*Repository, error)
	ListRepositories(context.Context) ([]*Repository, error)
	ListEnabledRepositories(context.Context) ([]*Repository, error)
	CountEnabledRepositoriesByPath(context.Context, string) (int64, error)
}

type RepositoryStore interface {
	RepositoryWriter
	RepositoryReader
}
