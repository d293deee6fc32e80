package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/multi-ci/internal"
)

type RunSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRunSQLiteStore(rdb, rwdb *sql.DB) *RunSQLiteStore {
	return &RunSQLiteStore{rdb, rwdb}
}

func (store *RunSQLiteStore) CreateRun(
	ctx context.Context,
	repositoryID, triggerRevision, triggerKind string,
) (*Run, error) {
	r := &Run{
		RepositoryID:    repositoryID,
		TriggerRevision: triggerRevision,
		TriggerKind:     triggerKind,
		Status:          StatusQueued,
	}
	query := `insert into runs (
		repository_id,
		trigger_revision,
		trigger_kind,
		status
	)
	values ($1, $2, $3, $4)
	returning run_id, created_on`
	if err := sqlscan.Get(
		ctx, store.rwdb, r, query,
		r.RepositoryID,
		r.TriggerRevision,
		r.TriggerKind,
		r.Status,
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ReadRunByID(ctx context.Context, id int64) (*Run, error) {
	r := &Run{RunID: id}
	query := "select * from runs where run_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, r, query, r.RunID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) UpdateRunTriggerRevision(
	ctx context.Context,
	id int64,
	triggerRevision string,
) error {
	query := `update runs
	set trigger_revision = $1
	where run_id = $2 and status = $3`
	_, err := store.rwdb.ExecContext(ctx, query, triggerRevision, id, StatusQueued)
	return err
}

func (store *RunSQLiteStore) UpdateRunStartedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	startedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		started_on = $2
	where run_id = $3`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		startedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) UpdateRunEndedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	reason, output *string,
	outputTruncated bool,
	endedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		reason = $2,
		output = $3,
		output_truncated = $4,
		ended_on = $5
	where run_id = $6`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		reason,
		output,
		outputTruncated,
		endedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

// MarkInterruptedRuns fails every run still marked running. A running row at
// startup has no executor behind it anymore, so the record cannot be trusted
// to complete.
func (store *RunSQLiteStore) MarkInterruptedRuns(
	ctx context.Context,
	reason string,
) (int64, error) {
	query := `update runs
	set status = $1,
		reason = $2,
		ended_on = $3
	where status = $4`
	res, err := store.rwdb.ExecContext(
		ctx, query,
		StatusFailed,
		reason,
		time.Now().UTC().Format(internal.DBTimestampLayout),
		StatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RunSQLiteStore) CreateStepResult(ctx context.Context, sr *StepResult) error {
	query := `insert into step_results (
		run_id,
		step_index,
		name,
		status,
		exit_status,
		duration_ms,
		output
	)
	values ($1, $2, $3, $4, $5, $6, $7)`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		sr.RunID,
		sr.StepIndex,
		sr.Name,
		sr.Status,
		sr.ExitStatus,
		sr.DurationMS,
		sr.Output,
	)
	return err
}

func (store *RunSQLiteStore) ListStepResults(
	ctx context.Context,
	runID int64,
) ([]StepResult, error) {
	query := `select * from step_results
	where run_id = $1
	order by step_index`
	results := make([]StepResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, runID)
	return results, err
}

func (store *RunSQLiteStore) ReadLatestRepositoryRun(
	ctx context.Context,
	repositoryID string,
) (*Run, error) {
	r := new(Run)
	query := `select * from runs
	where repository_id = $1
	order by run_id desc limit 1`
	if err := sqlscan.Get(ctx, store.rdb, r, query, repositoryID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ListQueuedRuns(ctx context.Context) ([]Run, error) {
	query := `select * from runs
	where status = $1
	order by run_id`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, StatusQueued)
	return runs, err
}

func (store *RunSQLiteStore) ListActiveRuns(ctx context.Context) ([]Run, error) {
	query := `select * from runs
	where status in ($1, $2)
	order by run_id`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, StatusQueued, StatusRunning)
	return runs, err
}

func (store *RunSQLiteStore) ListRepositoryRunsPaginated(
	ctx context.Context,
	repositoryID string,
	limit, offset int64,
) ([]Run, error) {
	query := `select * from runs
	where repository_id = $1
	order by run_id desc limit $2 offset $3`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, repositoryID, limit, offset)
	return runs, err
}

func (store *RunSQLiteStore) CountRepositoryRuns(
	ctx context.Context,
	repositoryID string,
) (int64, error) {
	var count int64
	query := "select count(*) from runs where repository_id = $1"
	err := sqlscan.Get(ctx, store.rdb, &count, query, repositoryID)
	return count, err
}
