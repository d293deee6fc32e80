package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/haatos/multi-ci/internal/util"
)

type runExecutor interface {
	Execute(ctx context.Context, run *store.Run, repository *store.Repository) store.RunStatus
}

type repositoryGetter interface {
	GetRepositoryByID(ctx context.Context, id string) (*store.Repository, error)
}

// SchedulerService owns queue membership and concurrency-slot accounting.
// Every admission decision happens under one mutex, and every state
// transition is written to the run store before it is acted on, so the store
// can rebuild the queue after a restart.
type SchedulerService struct {
	runStore store.RunStore
	registry repositoryGetter
	executor runExecutor

	maxConcurrent int64
	maxPerRepo    int64
	maxQueued     int64

	mu            sync.Mutex
	queue         []*store.Run
	runningByRepo map[string]int64
	runningRepos  map[int64]string
	runningTotal  int64
	cancelRunMap  *CancelMap[int64]

	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stop    sync.Once
}

func NewSchedulerService(
	runStore store.RunStore,
	registry repositoryGetter,
	executor runExecutor,
	maxConcurrent, maxPerRepo, maxQueued int64,
) *SchedulerService {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxPerRepo <= 0 {
		maxPerRepo = 1
	}
	return &SchedulerService{
		runStore:      runStore,
		registry:      registry,
		executor:      executor,
		maxConcurrent: maxConcurrent,
		maxPerRepo:    maxPerRepo,
		maxQueued:     maxQueued,
		runningByRepo: make(map[string]int64),
		runningRepos:  make(map[int64]string),
		cancelRunMap:  NewCancelMap[int64](),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Recover reconciles the run store after a process restart. Runs still marked
// running have no executor behind them and are failed as interrupted; queued
// runs are reloaded in enqueue order.
func (s *SchedulerService) Recover(ctx context.Context) error {
	interrupted, err := s.runStore.MarkInterruptedRuns(ctx, internal.ReasonInterrupted)
	if err != nil {
		return err
	}
	if interrupted > 0 {
		log.Printf("marked %d interrupted run(s) as failed\n", interrupted)
	}

	queued, err := s.runStore.ListQueuedRuns(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range queued {
		s.queue = append(s.queue, &queued[i])
	}
	if len(queued) > 0 {
		log.Printf("requeued %d run(s) from previous process\n", len(queued))
	}
	return nil
}

// Enqueue records a new run instance for the repository. Dirty signals from
// change detection coalesce: while the repository already has a run pending
// or running, at most one additional queued run exists and the latest
// trigger revision wins.
func (s *SchedulerService) Enqueue(
	ctx context.Context,
	repositoryID, triggerRevision, triggerKind string,
) (*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if triggerKind != internal.TriggerManual {
		queued := s.queuedForRepoLocked(repositoryID)
		running := s.runningByRepo[repositoryID]
		if len(queued) >= 2 || (len(queued) == 1 && running > 0) {
			last := queued[len(queued)-1]
			if err := s.runStore.UpdateRunTriggerRevision(
				ctx, last.RunID, triggerRevision,
			); err != nil {
				return nil, err
			}
			last.TriggerRevision = triggerRevision
			return last, nil
		}
	}

	if s.maxQueued > 0 && int64(len(s.queue)) >= s.maxQueued {
		return nil, NewErrRunQueueFull()
	}

	r, err := s.runStore.CreateRun(ctx, repositoryID, triggerRevision, triggerKind)
	if err != nil {
		return nil, err
	}
	s.queue = append(s.queue, r)
	s.signal()
	return r, nil
}

func (s *SchedulerService) queuedForRepoLocked(repositoryID string) []*store.Run {
	var runs []*store.Run
	for _, r := range s.queue {
		if r.RepositoryID == repositoryID {
			runs = append(runs, r)
		}
	}
	return runs
}

// Start launches the dispatch loop. Calling it again is a no-op.
func (s *SchedulerService) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	go s.Run(ctx)
}

// Run dispatches queued runs while slots are free and sleeps otherwise. It
// wakes on enqueue, slot release, cancellation and shutdown. The periodic
// tick retries dispatch after a transient persistence failure.
func (s *SchedulerService) Run(ctx context.Context) {
	for {
		if dispatched := s.dispatchNext(ctx); dispatched {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.wake:
		case <-time.After(time.Second):
		}
	}
}

func (s *SchedulerService) dispatchNext(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningTotal >= s.maxConcurrent {
		return false
	}

	i := 0
	for i < len(s.queue) {
		r := s.queue[i]
		// FIFO among eligible runs: a repository at its own limit never
		// blocks runs queued behind it for other repositories
		if s.runningByRepo[r.RepositoryID] >= s.maxPerRepo {
			i++
			continue
		}

		repository, err := s.registry.GetRepositoryByID(ctx, r.RepositoryID)
		if err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				// repository removed between enqueue and dispatch
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.persistCancelled(r.RunID)
				continue
			}
			log.Printf("err reading repository %s: %+v\n", r.RepositoryID, err)
			return false
		}

		startedOn := time.Now().UTC()
		if err := s.runStore.UpdateRunStartedOn(
			ctx, r.RunID, store.StatusRunning, &startedOn,
		); err != nil {
			// retried by the dispatch loop tick; the run stays queued
			log.Printf("err persisting run %d start: %+v\n", r.RunID, err)
			return false
		}
		r.Status = store.StatusRunning
		r.StartedOn = &startedOn

		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.runningTotal++
		s.runningByRepo[r.RepositoryID]++
		s.runningRepos[r.RunID] = r.RepositoryID

		// independent of the dispatch loop context: shutdown cancels runs
		// explicitly and waits for their terminal records
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancelRunMap.AddCancel(r.RunID, cancel)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer cancel()
			status := s.executor.Execute(runCtx, r, repository)
			s.release(r.RunID, r.RepositoryID)
			log.Printf(
				"run %d for repository %s finished: %s\n",
				r.RunID, r.RepositoryID, status,
			)
		}()
		return true
	}
	return false
}

func (s *SchedulerService) release(runID int64, repositoryID string) {
	s.mu.Lock()
	s.cancelRunMap.RemoveCancel(runID)
	delete(s.runningRepos, runID)
	s.runningTotal--
	if s.runningByRepo[repositoryID] <= 1 {
		delete(s.runningByRepo, repositoryID)
	} else {
		s.runningByRepo[repositoryID]--
	}
	s.mu.Unlock()
	s.signal()
}

// Cancel cancels a queued or running run. Cancelling a queued run writes its
// terminal record immediately; a running run is cancelled at its next step
// boundary by the executor.
func (s *SchedulerService) Cancel(ctx context.Context, runID int64) error {
	s.mu.Lock()
	for i, r := range s.queue {
		if r.RunID == runID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.persistCancelled(runID)
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	if s.cancelRunMap.Call(runID) {
		return nil
	}

	r, err := s.runStore.ReadRunByID(ctx, runID)
	if err != nil {
		if sqlscan.NotFound(err) {
			return NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
		}
		return err
	}
	if r.Status.Terminal() {
		return InvalidStateError{
			Message: fmt.Sprintf("run %d is already %s", runID, r.Status),
		}
	}
	return NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
}

// CancelRepositoryRuns cancels every queued and running run for one
// repository. Used when a repository is deregistered.
func (s *SchedulerService) CancelRepositoryRuns(ctx context.Context, repositoryID string) {
	s.mu.Lock()
	kept := s.queue[:0]
	for _, r := range s.queue {
		if r.RepositoryID == repositoryID {
			s.persistCancelled(r.RunID)
			continue
		}
		kept = append(kept, r)
	}
	s.queue = kept

	var running []int64
	for runID, repoID := range s.runningRepos {
		if repoID == repositoryID {
			running = append(running, runID)
		}
	}
	s.mu.Unlock()

	for _, runID := range running {
		s.cancelRunMap.Call(runID)
	}
}

func (s *SchedulerService) persistCancelled(runID int64) {
	endedOn := time.Now().UTC()
	if err := s.runStore.UpdateRunEndedOn(
		context.Background(),
		runID,
		store.StatusCancelled,
		util.AsPtr(internal.ReasonCancelled),
		nil,
		false,
		&endedOn,
	); err != nil {
		log.Printf("err persisting run %d cancellation: %+v\n", runID, err)
	}
}

// Shutdown cancels all running executors and waits (bounded by ctx) for them
// to write their terminal records. Queued runs stay queued and are picked up
// on the next start.
func (s *SchedulerService) Shutdown(ctx context.Context) {
	s.stop.Do(func() {
		close(s.done)
	})
	s.cancelRunMap.CallAll()

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-ctx.Done():
		log.Println("shutdown timed out waiting for running executors")
	}
}

func (s *SchedulerService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
