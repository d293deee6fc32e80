package service

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	_ "modernc.org/sqlite"
)

type fakeRevisionReader struct {
	revision string
	err      error
}

func (f *fakeRevisionReader) CurrentRevision(path string) (string, error) {
	return f.revision, f.err
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(
	ctx context.Context,
	repositoryID, triggerRevision, triggerKind string,
) (*store.Run, error) {
	args := m.Called(ctx, repositoryID, triggerRevision, triggerKind)
	var r *store.Run
	if args.Get(0) != nil {
		r = args.Get(0).(*store.Run)
	}
	return r, args.Error(1)
}

type changeDetectorSuite struct {
	db        *sql.DB
	registry  *RegistryService
	revisions *fakeRevisionReader
	enqueuer  *mockEnqueuer
	detector  *ChangeDetector
	suite.Suite
}

func TestChangeDetector(t *testing.T) {
	suite.Run(t, new(changeDetectorSuite))
}

func (suite *changeDetectorSuite) SetupTest() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	store.RunMigrations(db)

	suite.registry = NewRegistryService(store.NewRepositorySQLiteStore(db, db))
	suite.revisions = &fakeRevisionReader{}
	suite.enqueuer = new(mockEnqueuer)

	detector, err := NewChangeDetector(
		suite.registry, suite.enqueuer, suite.revisions, 30*time.Second, false,
	)
	if err != nil {
		log.Fatal(err)
	}
	suite.detector = detector
}

func (suite *changeDetectorSuite) TearDownTest() {
	_ = suite.db.Close()
}

func (suite *changeDetectorSuite) registerRepository() *store.Repository {
	r, err := suite.registry.Register(
		context.Background(), suite.T().TempDir(), "detector-test", "", 0,
	)
	suite.Require().Nil(err)
	return r
}

func (suite *changeDetectorSuite) TestChangeDetector_Poll() {
	suite.Run("success - new revision enqueued and recorded", func() {
		// arrange
		repository := suite.registerRepository()
		suite.revisions.revision = "rev-1"
		suite.enqueuer.On(
			"Enqueue", mock.Anything, repository.RepositoryID, "rev-1", internal.TriggerPoll,
		).Return(&store.Run{RunID: 1}, nil).Once()

		// act
		suite.detector.Poll(context.Background(), repository.RepositoryID, internal.TriggerPoll)

		// assert
		suite.enqueuer.AssertExpectations(suite.T())
		read, err := suite.registry.GetRepositoryByID(
			context.Background(), repository.RepositoryID,
		)
		suite.Nil(err)
		suite.NotNil(read.LastKnownRevision)
		suite.Equal("rev-1", *read.LastKnownRevision)
	})

	suite.Run("success - unchanged revision is not enqueued", func() {
		// arrange
		repository := suite.registerRepository()
		suite.revisions.revision = "rev-1"
		err := suite.registry.UpdateLastKnownRevision(
			context.Background(), repository.RepositoryID, "rev-1",
		)
		suite.Require().Nil(err)

		// act
		suite.detector.Poll(context.Background(), repository.RepositoryID, internal.TriggerPoll)

		// assert
		suite.enqueuer.AssertNotCalled(
			suite.T(), "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		)
	})

	suite.Run("fail - enqueue error leaves last known revision alone", func() {
		// arrange
		repository := suite.registerRepository()
		suite.revisions.revision = "rev-2"
		suite.enqueuer.On(
			"Enqueue", mock.Anything, repository.RepositoryID, "rev-2", internal.TriggerPoll,
		).Return(nil, NewErrRunQueueFull()).Once()

		// act
		suite.detector.Poll(context.Background(), repository.RepositoryID, internal.TriggerPoll)

		// assert - the change is re-detected on the next poll
		suite.enqueuer.AssertExpectations(suite.T())
		read, err := suite.registry.GetRepositoryByID(
			context.Background(), repository.RepositoryID,
		)
		suite.Nil(err)
		suite.Nil(read.LastKnownRevision)
	})

	suite.Run("fail - vcs error is contained", func() {
		// arrange
		repository := suite.registerRepository()
		suite.revisions.err = VcsError{Path: repository.Path}

		// act
		suite.detector.Poll(context.Background(), repository.RepositoryID, internal.TriggerPoll)

		// assert
		suite.enqueuer.AssertNotCalled(
			suite.T(), "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		)
		suite.revisions.err = nil
	})

	suite.Run("success - disabled repository is skipped", func() {
		// arrange
		repository := suite.registerRepository()
		_, err := suite.registry.SetRepositoryEnabled(
			context.Background(), repository.RepositoryID, false,
		)
		suite.Require().Nil(err)
		suite.revisions.revision = "rev-3"

		// act
		suite.detector.Poll(context.Background(), repository.RepositoryID, internal.TriggerPoll)

		// assert
		suite.enqueuer.AssertNotCalled(
			suite.T(), "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		)
	})
}

func (suite *changeDetectorSuite) TestChangeDetector_Nudge() {
	suite.Run("success - nudge enqueues with its own trigger kind", func() {
		// arrange
		repository := suite.registerRepository()
		suite.revisions.revision = "rev-4"
		suite.enqueuer.On(
			"Enqueue", mock.Anything, repository.RepositoryID, "rev-4", internal.TriggerNudge,
		).Return(&store.Run{RunID: 2}, nil).Once()

		// act
		suite.detector.Nudge(context.Background(), repository.RepositoryID)

		// assert
		suite.enqueuer.AssertExpectations(suite.T())
	})
}

func (suite *changeDetectorSuite) TestChangeDetector_WatchUnwatch() {
	suite.Run("success - watch is idempotent and unwatch removes the job", func() {
		// arrange
		repository := suite.registerRepository()

		// act
		err := suite.detector.Watch(repository)
		suite.Nil(err)
		err = suite.detector.Watch(repository)

		// assert
		suite.Nil(err)
		suite.detector.mu.Lock()
		suite.Len(suite.detector.jobs, 1)
		suite.detector.mu.Unlock()

		suite.detector.Unwatch(repository.RepositoryID)
		suite.detector.mu.Lock()
		suite.Len(suite.detector.jobs, 0)
		suite.detector.mu.Unlock()
	})
}
