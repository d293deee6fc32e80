package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/haatos/multi-ci/internal/util"
)

type Executor struct {
	runStore           store.RunStore
	resolver           PipelineResolver
	maxOutputBytes     int64
	defaultStepTimeout time.Duration
}

func NewExecutor(
	runStore store.RunStore,
	resolver PipelineResolver,
	maxOutputBytes int64,
	defaultStepTimeout time.Duration,
) *Executor {
	return &Executor{
		runStore:           runStore,
		resolver:           resolver,
		maxOutputBytes:     maxOutputBytes,
		defaultStepTimeout: defaultStepTimeout,
	}
}

// Execute runs every step of one run instance in order and persists the
// terminal state before returning. The caller releases the run's concurrency
// slot only after Execute returns, so a released slot always corresponds to a
// durable terminal record. Cancelling ctx stops the pipeline at the next step
// boundary and kills the in-flight step.
func (e *Executor) Execute(
	ctx context.Context,
	run *store.Run,
	repository *store.Repository,
) store.RunStatus {
	output := NewOutputBuffer(e.maxOutputBytes)

	// the path was validated at registration; it may have vanished since
	if _, err := os.Stat(repository.Path); err != nil {
		fmt.Fprintf(output, "working copy is not readable: %v\n", err)
		return e.finish(run, store.StatusFailed, internal.ReasonExecError, output)
	}

	ps, err := e.resolver.Resolve(repository)
	if err != nil {
		fmt.Fprintf(output, "%v\n", err)
		return e.finish(run, store.StatusFailed, internal.ReasonConfigError, output)
	}

	lock := flock.New(filepath.Join(repository.Path, internal.WorkingCopyLock))
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil || !locked {
		if ctx.Err() != nil {
			fmt.Fprintln(output, "run cancelled while waiting for the working copy lock")
			return e.finish(run, store.StatusCancelled, internal.ReasonCancelled, output)
		}
		fmt.Fprintf(output, "err locking working copy: %v\n", err)
		return e.finish(run, store.StatusFailed, internal.ReasonExecError, output)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("err unlocking working copy %s: %+v\n", repository.Path, err)
		}
	}()

	for i, step := range ps.Steps {
		if ctx.Err() != nil {
			fmt.Fprintln(output, "run cancelled")
			return e.finish(run, store.StatusCancelled, internal.ReasonCancelled, output)
		}

		fmt.Fprintf(output, "Executing pipeline step %d '%s'\n", i, step.Name)
		sr := e.runStep(ctx, run.RunID, int64(i), repository.Path, step, output)

		// step results are written as they complete so a crash mid-pipeline
		// leaves the finished steps on record
		if err := e.runStore.CreateStepResult(context.Background(), sr); err != nil {
			log.Printf("err persisting step result for run %d: %+v\n", run.RunID, err)
		}

		switch sr.Status {
		case store.StepStatusCancelled:
			return e.finish(run, store.StatusCancelled, internal.ReasonCancelled, output)
		case store.StepStatusTimedOut:
			if !step.ContinueOnFailure {
				return e.finish(run, store.StatusFailed, internal.ReasonStepTimedOut, output)
			}
		case store.StepStatusFailed:
			if !step.ContinueOnFailure {
				return e.finish(run, store.StatusFailed, internal.ReasonStepFailed, output)
			}
		}
	}

	return e.finish(run, store.StatusPassed, "", output)
}

func (e *Executor) runStep(
	ctx context.Context,
	runID, stepIndex int64,
	cwd string,
	step Step,
	runOutput *OutputBuffer,
) *store.StepResult {
	timeout := e.defaultStepTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stepOutput := NewOutputBuffer(e.maxOutputBytes)
	w := io.MultiWriter(runOutput, stepOutput)

	cmd := exec.CommandContext(stepCtx, "sh", "-c", step.Script)
	cmd.Dir = cwd
	cmd.Stdout = w
	cmd.Stderr = w

	started := time.Now().UTC()
	err := cmd.Run()
	duration := time.Since(started)

	sr := &store.StepResult{
		RunID:      runID,
		StepIndex:  stepIndex,
		Name:       step.Name,
		Status:     store.StepStatusPassed,
		DurationMS: duration.Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
			sr.Status = store.StepStatusTimedOut
			sr.ExitStatus = -1
			fmt.Fprintf(w, "step timed out after %d seconds\n", int(timeout.Seconds()))
		case ctx.Err() != nil:
			sr.Status = store.StepStatusCancelled
			sr.ExitStatus = -1
			fmt.Fprintln(w, "step cancelled")
		case errors.As(err, &exitErr):
			sr.Status = store.StepStatusFailed
			sr.ExitStatus = int64(exitErr.ExitCode())
		default:
			sr.Status = store.StepStatusFailed
			sr.ExitStatus = -1
			fmt.Fprintf(w, "%v\n", ExecError{Script: step.Script, Err: err})
		}
	}

	sr.Output = stepOutput.String()
	return sr
}

// finish writes the terminal record. It deliberately uses a background
// context: the run context may already be cancelled and the terminal state
// must still be persisted.
func (e *Executor) finish(
	run *store.Run,
	status store.RunStatus,
	reason string,
	output *OutputBuffer,
) store.RunStatus {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = util.AsPtr(reason)
	}
	endedOn := time.Now().UTC()
	if err := e.runStore.UpdateRunEndedOn(
		context.Background(),
		run.RunID,
		status,
		reasonPtr,
		util.AsPtr(output.String()),
		output.Truncated(),
		&endedOn,
	); err != nil {
		log.Printf("err updating run %d terminal state: %+v\n", run.RunID, err)
	}
	return status
}
