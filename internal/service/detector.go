package service

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/haatos/multi-ci/internal/vcs"
)

type detectorRegistry interface {
	ListEnabledRepositories(ctx context.Context) ([]*store.Repository, error)
	GetRepositoryByID(ctx context.Context, id string) (*store.Repository, error)
	UpdateLastKnownRevision(ctx context.Context, id, revision string) error
}

type runEnqueuer interface {
	Enqueue(ctx context.Context, repositoryID, triggerRevision, triggerKind string) (*store.Run, error)
}

// ChangeDetector polls each enabled repository for new revisions and reports
// dirty repositories to the scheduler. Polling is the source of truth; the
// optional fsnotify watch on .git/HEAD only triggers an immediate poll.
type ChangeDetector struct {
	registry        detectorRegistry
	enqueuer        runEnqueuer
	revisions       vcs.RevisionReader
	cron            gocron.Scheduler
	defaultInterval time.Duration

	mu        sync.Mutex
	jobs      map[string]uuid.UUID
	watchDirs map[string]string
	lastNudge map[string]time.Time
	watcher   *fsnotify.Watcher
}

func NewChangeDetector(
	registry detectorRegistry,
	enqueuer runEnqueuer,
	revisions vcs.RevisionReader,
	defaultInterval time.Duration,
	watchWorkingCopies bool,
) (*ChangeDetector, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	d := &ChangeDetector{
		registry:        registry,
		enqueuer:        enqueuer,
		revisions:       revisions,
		cron:            cron,
		defaultInterval: defaultInterval,
		jobs:            make(map[string]uuid.UUID),
		watchDirs:       make(map[string]string),
		lastNudge:       make(map[string]time.Time),
	}

	if watchWorkingCopies {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}

	return d, nil
}

// Start schedules a polling job per enabled repository and begins the watch
// loop when file watching is enabled.
func (d *ChangeDetector) Start(ctx context.Context) error {
	repositories, err := d.registry.ListEnabledRepositories(ctx)
	if err != nil {
		return err
	}
	for _, r := range repositories {
		if err := d.Watch(r); err != nil {
			log.Printf("err watching repository %s: %+v\n", r.RepositoryID, err)
		}
	}

	d.cron.Start()

	if d.watcher != nil {
		go d.watchLoop(ctx)
	}
	return nil
}

func (d *ChangeDetector) Stop() {
	if err := d.cron.Shutdown(); err != nil {
		log.Printf("err shutting down poll scheduler: %+v\n", err)
	}
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			log.Printf("err closing working copy watcher: %+v\n", err)
		}
	}
}

// Watch adds the repository to the watch set. Idempotent per repository id.
func (d *ChangeDetector) Watch(repository *store.Repository) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.jobs[repository.RepositoryID]; ok {
		return nil
	}

	interval := d.defaultInterval
	if repository.PollIntervalSeconds > 0 {
		interval = time.Duration(repository.PollIntervalSeconds) * time.Second
	}

	repositoryID := repository.RepositoryID
	job, err := d.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			d.Poll(context.Background(), repositoryID, internal.TriggerPoll)
		}),
	)
	if err != nil {
		return err
	}
	d.jobs[repositoryID] = job.ID()

	if d.watcher != nil {
		gitDir := filepath.Join(repository.Path, ".git")
		if err := d.watcher.Add(gitDir); err != nil {
			log.Printf("err adding watch for %s: %+v\n", gitDir, err)
		} else {
			d.watchDirs[gitDir] = repositoryID
		}
	}
	return nil
}

// Unwatch removes the repository from the watch set. Safe to call for
// repositories that were never watched.
func (d *ChangeDetector) Unwatch(repositoryID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	jobID, ok := d.jobs[repositoryID]
	if !ok {
		return
	}
	if err := d.cron.RemoveJob(jobID); err != nil {
		log.Printf("err removing poll job for repository %s: %+v\n", repositoryID, err)
	}
	delete(d.jobs, repositoryID)

	for dir, id := range d.watchDirs {
		if id == repositoryID {
			if d.watcher != nil {
				_ = d.watcher.Remove(dir)
			}
			delete(d.watchDirs, dir)
		}
	}
}

// Nudge runs an immediate check outside the polling interval.
func (d *ChangeDetector) Nudge(ctx context.Context, repositoryID string) {
	d.Poll(ctx, repositoryID, internal.TriggerNudge)
}

// Poll compares the working copy's current revision to the last known one
// and enqueues a run when they differ. The last known revision is advanced
// only after the run is durably enqueued, so a crash in between re-detects
// the change instead of losing it. Detection failures are logged and retried
// on the next interval.
func (d *ChangeDetector) Poll(ctx context.Context, repositoryID, triggerKind string) {
	repository, err := d.registry.GetRepositoryByID(ctx, repositoryID)
	if err != nil {
		log.Printf("err reading repository %s: %+v\n", repositoryID, err)
		return
	}
	if !repository.Enabled {
		return
	}

	revision, err := d.revisions.CurrentRevision(repository.Path)
	if err != nil {
		log.Printf("%v\n", VcsError{Path: repository.Path, Err: err})
		return
	}

	if repository.LastKnownRevision != nil && *repository.LastKnownRevision == revision {
		return
	}

	if _, err := d.enqueuer.Enqueue(ctx, repositoryID, revision, triggerKind); err != nil {
		// the revision is not advanced, so the change is re-detected later
		log.Printf("err enqueuing run for repository %s: %+v\n", repositoryID, err)
		return
	}

	if err := d.registry.UpdateLastKnownRevision(ctx, repositoryID, revision); err != nil {
		log.Printf("err updating last known revision for %s: %+v\n", repositoryID, err)
	}
}

func (d *ChangeDetector) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, "HEAD") {
				continue
			}
			if repositoryID, ok := d.repositoryForEvent(event.Name); ok {
				d.Nudge(ctx, repositoryID)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("working copy watcher error: %+v\n", err)
		}
	}
}

// repositoryForEvent maps a watched file back to its repository, rate
// limiting nudges so a burst of ref updates triggers a single poll.
func (d *ChangeDetector) repositoryForEvent(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	repositoryID, ok := d.watchDirs[filepath.Dir(name)]
	if !ok {
		return "", false
	}
	if time.Since(d.lastNudge[repositoryID]) < time.Second {
		return "", false
	}
	d.lastNudge[repositoryID] = time.Now()
	return repositoryID, true
}
