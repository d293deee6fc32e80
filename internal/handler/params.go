package handler

import (
	"time"

	"github.com/haatos/multi-ci/internal/store"
)

type RegisterRepositoryParams struct {
	Path                string `json:"path"`
	Name                string `json:"name"`
	ScriptPath          string `json:"script_path"`
	PollIntervalSeconds int64  `json:"poll_interval_seconds"`
}

type RepositoryParams struct {
	RepositoryID string `param:"repository_id"`
}

type PatchRepositoryEnabledParams struct {
	RepositoryID string `param:"repository_id"`
	Enabled      bool   `json:"enabled"`
}

type TriggerRunParams struct {
	RepositoryID string `param:"repository_id"`
	Revision     string `json:"revision"`
}

type ListRunsParams struct {
	RepositoryID string `param:"repository_id"`
	Page         int64  `query:"page"`
}

type RunParams struct {
	RunID int64 `param:"run_id"`
}

type RepositoryResponse struct {
	RepositoryID        string       `json:"repository_id"`
	Name                string       `json:"name"`
	Path                string       `json:"path"`
	ScriptPath          string       `json:"script_path"`
	Enabled             bool         `json:"enabled"`
	PollIntervalSeconds int64        `json:"poll_interval_seconds"`
	LastKnownRevision   *string      `json:"last_known_revision"`
	CreatedOn           time.Time    `json:"created_on"`
	LatestRun           *RunResponse `json:"latest_run,omitempty"`
}

type RunResponse struct {
	RunID           int64                `json:"run_id"`
	RepositoryID    string               `json:"repository_id"`
	TriggerRevision string               `json:"trigger_revision"`
	TriggerKind     string               `json:"trigger_kind"`
	Status          store.RunStatus      `json:"status"`
	Reason          *string              `json:"reason,omitempty"`
	Output          *string              `json:"output,omitempty"`
	OutputTruncated bool                 `json:"output_truncated"`
	CreatedOn       time.Time            `json:"created_on"`
	StartedOn       *time.Time           `json:"started_on,omitempty"`
	EndedOn         *time.Time           `json:"ended_on,omitempty"`
	StepResults     []StepResultResponse `json:"step_results,omitempty"`
}

type StepResultResponse struct {
	StepIndex  int64            `json:"step_index"`
	Name       string           `json:"name"`
	Status     store.StepStatus `json:"status"`
	ExitStatus int64            `json:"exit_status"`
	DurationMS int64            `json:"duration_ms"`
	Output     string           `json:"output"`
}

func toRepositoryResponse(r *store.Repository, latest *store.Run) RepositoryResponse {
	resp := RepositoryResponse{
		RepositoryID:        r.RepositoryID,
		Name:                r.Name,
		Path:                r.Path,
		ScriptPath:          r.ScriptPath,
		Enabled:             r.Enabled,
		PollIntervalSeconds: r.PollIntervalSeconds,
		LastKnownRevision:   r.LastKnownRevision,
		CreatedOn:           r.CreatedOn,
	}
	if latest != nil {
		run := toRunResponse(latest, nil)
		run.Output = nil
		resp.LatestRun = &run
	}
	return resp
}

func toRunResponse(r *store.Run, steps []store.StepResult) RunResponse {
	resp := RunResponse{
		RunID:           r.RunID,
		RepositoryID:    r.RepositoryID,
		TriggerRevision: r.TriggerRevision,
		TriggerKind:     r.TriggerKind,
		Status:          r.Status,
		Reason:          r.Reason,
		Output:          r.Output,
		OutputTruncated: r.OutputTruncated,
		CreatedOn:       r.CreatedOn,
		StartedOn:       r.StartedOn,
		EndedOn:         r.EndedOn,
	}
	for _, sr := range steps {
		resp.StepResults = append(resp.StepResults, StepResultResponse{
			StepIndex:  sr.StepIndex,
			Name:       sr.Name,
			Status:     sr.Status,
			ExitStatus: sr.ExitStatus,
			DurationMS: sr.DurationMS,
			Output:     sr.Output,
		})
	}
	return resp
}
