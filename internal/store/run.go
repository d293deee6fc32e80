package store

import (
	"context"
	"time"
)

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
	StatusPassed    RunStatus = "passed"
)

func (rs RunStatus) Terminal() bool {
	return rs == StatusCancelled || rs == StatusFailed || rs == StatusPassed
}

type StepStatus string

const (
	StepStatusPassed    StepStatus = "passed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusTimedOut  StepStatus = "timed_out"
	StepStatusCancelled StepStatus = "cancelled"
)

type Run struct {
	RunID           int64 `param:"run_id"`
	RepositoryID    string
	TriggerRevision string
	TriggerKind     string
	Status          RunStatus
	Reason          *string
	Output          *string
	OutputTruncated bool
	CreatedOn       time.Time
	StartedOn       *time.Time
	EndedOn         *time.Time
}

type StepResult struct {
	RunID      int64
	StepIndex  int64
	Name       string
	Status     StepStatus
	ExitStatus int64
	DurationMS int64
	Output     string
}

type RunWriter interface {
	CreateRun(context.Context, string, string, string) (*Run, error)
	UpdateRunTriggerRevision(context.Context, int64, string) error
	UpdateRunStartedOn(context.Context, int64, RunStatus, *time.Time) error
	UpdateRunEndedOn(context.Context, int64, RunStatus, *string, *string, bool, *time.Time) error
	MarkInterruptedRuns(context.Context, string) (int64, error)
	CreateStepResult(context.Context, *StepResult) error
}

type RunReader interface {
	ReadRunByID(context.Context, int64) (*Run, error)
	ReadLatestRepositoryRun(context.Context, string) (*Run, error)
	ListQueuedRuns(context.Context) ([]Run, error)
	ListActiveRuns(context.Context) ([]Run, error)
	ListRepositoryRunsPaginated(context.Context, string, int64, int64) ([]Run, error)
	CountRepositoryRuns(context.Context, string) (int64, error)
	ListStepResults(context.Context, int64) ([]StepResult, error)
}

type RunStore interface {
	RunWriter
	RunReader
}
