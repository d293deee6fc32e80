package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type RepositorySQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRepositorySQLiteStore(rdb, rwdb *sql.DB) *RepositorySQLiteStore {
	return &RepositorySQLiteStore{rdb, rwdb}
}

func (store *RepositorySQLiteStore) CreateRepository(
	ctx context.Context,
	r *Repository,
) error {
	query := `insert into repositories (
		repository_id,
		name,
		path,
		script_path,
		enabled,
		poll_interval_seconds
	)
	values ($1, $2, $3, $4, $5, $6)
	returning created_on`
	return sqlscan.Get(
		ctx, store.rwdb, r, query,
		r.RepositoryID,
		r.Name,
		r.Path,
		r.ScriptPath,
		r.Enabled,
		r.PollIntervalSeconds,
	)
}

func (store *RepositorySQLiteStore) ReadRepositoryByID(
	ctx context.Context,
	id string,
) (*Repository, error) {
	r := &Repository{RepositoryID: id}
	query := "select * from repositories where repository_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, r, query, r.RepositoryID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RepositorySQLiteStore) ListRepositories(
	ctx context.Context,
) ([]*Repository, error) {
	query := "select * from repositories order by created_on"
	repositories := make([]*Repository, 0)
	err := sqlscan.Select(ctx, store.rdb, &repositories, query)
	return repositories, err
}

func (store *RepositorySQLiteStore) ListEnabledRepositories(
	ctx context.Context,
) ([]*Repository, error) {
	query := "select * from repositories where enabled = 1 order by created_on"
	repositories := make([]*Repository, 0)
	err := sqlscan.Select(ctx, store.rdb, &repositories, query)
	return repositories, err
}

func (store *RepositorySQLiteStore) CountEnabledRepositoriesByPath(
	ctx context.Context,
	path string,
) (int64, error) {
	var count int64
	query := "select count(*) from repositories where path = $1 and enabled = 1"
	err := sqlscan.Get(ctx, store.rdb, &count, query, path)
	return count, err
}

func (store *RepositorySQLiteStore) UpdateRepositoryEnabled(
	ctx context.Context,
	id string,
	enabled bool,
) error {
	query := `update repositories
	set enabled = $1
	where repository_id = $2`
	_, err := store.rwdb.ExecContext(ctx, query, enabled, id)
	return err
}

func (store *RepositorySQLiteStore) UpdateLastKnownRevision(
	ctx context.Context,
	id string,
	revision string,
) error {
	query := `update repositories
	set last_known_revision = $1
	where repository_id = $2`
	_, err := store.rwdb.ExecContext(ctx, query, revision, id)
	return err
}

func (store *RepositorySQLiteStore) DeleteRepository(ctx context.Context, id string) error {
	query := "delete from repositories where repository_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}
