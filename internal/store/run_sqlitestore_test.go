package store

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/util"
	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"
)

type runSQLiteStoreSuite struct {
	runStore        *RunSQLiteStore
	repositoryStore *RepositorySQLiteStore
	db              *sql.DB
	repository      *Repository
	suite.Suite
}

func TestRunSQLiteStore(t *testing.T) {
	suite.Run(t, new(runSQLiteStoreSuite))
}

func (suite *runSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db)

	suite.runStore = NewRunSQLiteStore(db, db)
	suite.repositoryStore = NewRepositorySQLiteStore(db, db)

	r := &Repository{
		RepositoryID: uuid.NewString(),
		Name:         "run-test-repo",
		Path:         "/tmp/run-test-repo",
		ScriptPath:   ".multi-ci.yml",
		Enabled:      true,
	}
	if err := suite.repositoryStore.CreateRepository(context.Background(), r); err != nil {
		log.Fatal(err)
	}
	suite.repository = r
}

func (suite *runSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_CreateRun() {
	suite.Run("success - run created queued", func() {
		// act
		r, err := suite.runStore.CreateRun(
			context.Background(),
			suite.repository.RepositoryID,
			"rev-1",
			internal.TriggerPoll,
		)

		// assert
		suite.Nil(err)
		suite.Greater(r.RunID, int64(0))
		suite.Equal(StatusQueued, r.Status)
		suite.Equal("rev-1", r.TriggerRevision)
		suite.False(r.CreatedOn.IsZero())
	})

	suite.Run("success - run ids are monotonic", func() {
		// act
		first, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-a", internal.TriggerManual,
		)
		suite.Nil(err)
		second, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-b", internal.TriggerManual,
		)
		suite.Nil(err)

		// assert
		suite.Greater(second.RunID, first.RunID)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_UpdateRunTriggerRevision() {
	suite.Run("success - queued run revision updated", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-old", internal.TriggerPoll,
		)
		suite.Nil(err)

		// act
		err = suite.runStore.UpdateRunTriggerRevision(context.Background(), r.RunID, "rev-new")

		// assert
		suite.Nil(err)
		read, err := suite.runStore.ReadRunByID(context.Background(), r.RunID)
		suite.Nil(err)
		suite.Equal("rev-new", read.TriggerRevision)
	})

	suite.Run("success - running run revision is not touched", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-old", internal.TriggerPoll,
		)
		suite.Nil(err)
		startedOn := time.Now().UTC()
		err = suite.runStore.UpdateRunStartedOn(
			context.Background(), r.RunID, StatusRunning, &startedOn,
		)
		suite.Nil(err)

		// act
		err = suite.runStore.UpdateRunTriggerRevision(context.Background(), r.RunID, "rev-new")

		// assert
		suite.Nil(err)
		read, err := suite.runStore.ReadRunByID(context.Background(), r.RunID)
		suite.Nil(err)
		suite.Equal("rev-old", read.TriggerRevision)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_UpdateRunEndedOn() {
	suite.Run("success - terminal state recorded with output", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-2", internal.TriggerManual,
		)
		suite.Nil(err)
		startedOn := time.Now().UTC()
		err = suite.runStore.UpdateRunStartedOn(
			context.Background(), r.RunID, StatusRunning, &startedOn,
		)
		suite.Nil(err)

		// act
		endedOn := time.Now().UTC()
		err = suite.runStore.UpdateRunEndedOn(
			context.Background(),
			r.RunID,
			StatusPassed,
			nil,
			util.AsPtr("step output"),
			false,
			&endedOn,
		)

		// assert
		suite.Nil(err)
		read, err := suite.runStore.ReadRunByID(context.Background(), r.RunID)
		suite.Nil(err)
		suite.Equal(StatusPassed, read.Status)
		suite.NotNil(read.Output)
		suite.Equal("step output", *read.Output)
		suite.NotNil(read.StartedOn)
		suite.NotNil(read.EndedOn)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_MarkInterruptedRuns() {
	suite.Run("success - running runs failed as interrupted, queued left alone", func() {
		// arrange
		running, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-3", internal.TriggerPoll,
		)
		suite.Nil(err)
		startedOn := time.Now().UTC()
		err = suite.runStore.UpdateRunStartedOn(
			context.Background(), running.RunID, StatusRunning, &startedOn,
		)
		suite.Nil(err)
		queued, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-4", internal.TriggerPoll,
		)
		suite.Nil(err)

		// act
		count, err := suite.runStore.MarkInterruptedRuns(
			context.Background(), internal.ReasonInterrupted,
		)

		// assert
		suite.Nil(err)
		suite.Equal(int64(1), count)

		read, err := suite.runStore.ReadRunByID(context.Background(), running.RunID)
		suite.Nil(err)
		suite.Equal(StatusFailed, read.Status)
		suite.NotNil(read.Reason)
		suite.Equal(internal.ReasonInterrupted, *read.Reason)

		readQueued, err := suite.runStore.ReadRunByID(context.Background(), queued.RunID)
		suite.Nil(err)
		suite.Equal(StatusQueued, readQueued.Status)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_StepResults() {
	suite.Run("success - step results listed in order", func() {
		// arrange
		r, err := suite.runStore.CreateRun(
			context.Background(), suite.repository.RepositoryID, "rev-5", internal.TriggerManual,
		)
		suite.Nil(err)

		// act
		for i := int64(0); i < 3; i++ {
			err = suite.runStore.CreateStepResult(context.Background(), &StepResult{
				RunID:      r.RunID,
				StepIndex:  i,
				Name:       "step",
				Status:     StepStatusPassed,
				DurationMS: 10,
				Output:     "ok",
			})
			suite.Nil(err)
		}

		// assert
		results, err := suite.runStore.ListStepResults(context.Background(), r.RunID)
		suite.Nil(err)
		suite.Len(results, 3)
		for i, sr := range results {
			suite.Equal(int64(i), sr.StepIndex)
		}
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_HistorySurvivesRepositoryRemoval() {
	suite.Run("success - runs readable after repository deletion", func() {
		// arrange
		removed := &Repository{
			RepositoryID: uuid.NewString(),
			Name:         "removed-repo",
			Path:         "/tmp/removed-repo",
			ScriptPath:   ".multi-ci.yml",
			Enabled:      true,
		}
		err := suite.repositoryStore.CreateRepository(context.Background(), removed)
		suite.Nil(err)
		r, err := suite.runStore.CreateRun(
			context.Background(), removed.RepositoryID, "rev-6", internal.TriggerManual,
		)
		suite.Nil(err)
		endedOn := time.Now().UTC()
		err = suite.runStore.UpdateRunEndedOn(
			context.Background(), r.RunID, StatusPassed, nil, nil, false, &endedOn,
		)
		suite.Nil(err)

		// act
		err = suite.repositoryStore.DeleteRepository(context.Background(), removed.RepositoryID)

		// assert
		suite.Nil(err)
		read, err := suite.runStore.ReadRunByID(context.Background(), r.RunID)
		suite.Nil(err)
		suite.Equal(StatusPassed, read.Status)
		suite.Equal(removed.RepositoryID, read.RepositoryID)
	})
}

func (suite *runSQLiteStoreSuite) TestRunSQLiteStore_ListQueuedRuns() {
	suite.Run("success - queued runs listed in enqueue order", func() {
		// act
		runs, err := suite.runStore.ListQueuedRuns(context.Background())

		// assert
		suite.Nil(err)
		for i := 1; i < len(runs); i++ {
			suite.Greater(runs[i].RunID, runs[i-1].RunID)
			suite.Equal(StatusQueued, runs[i].Status)
		}
	})
}
