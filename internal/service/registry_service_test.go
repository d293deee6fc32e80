package service

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/stretchr/testify/suite"

	_ "modernc.org/sqlite"
)

type registryServiceSuite struct {
	db      *sql.DB
	service *RegistryService
	suite.Suite
}

func TestRegistryService(t *testing.T) {
	suite.Run(t, new(registryServiceSuite))
}

func (suite *registryServiceSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	store.RunMigrations(db)

	suite.service = NewRegistryService(store.NewRepositorySQLiteStore(db, db))
}

func (suite *registryServiceSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *registryServiceSuite) TestRegistryService_Register() {
	suite.Run("success - defaults filled in", func() {
		// arrange
		dir := suite.T().TempDir()

		// act
		r, err := suite.service.Register(context.Background(), dir, "", "", 0)

		// assert
		suite.Nil(err)
		suite.NotEmpty(r.RepositoryID)
		suite.Equal(filepath.Base(dir), r.Name)
		suite.Equal(internal.DefaultScriptPath, r.ScriptPath)
		suite.True(r.Enabled)
	})

	suite.Run("fail - path does not exist", func() {
		// act
		_, err := suite.service.Register(
			context.Background(), "/nonexistent/nowhere", "", "", 0,
		)

		// assert
		suite.ErrorAs(err, &ValidationError{})
	})

	suite.Run("fail - path is a file", func() {
		// arrange
		f := filepath.Join(suite.T().TempDir(), "file.txt")
		err := os.WriteFile(f, []byte("x"), 0o644)
		suite.Require().Nil(err)

		// act
		_, err = suite.service.Register(context.Background(), f, "", "", 0)

		// assert
		suite.ErrorAs(err, &ValidationError{})
	})

	suite.Run("fail - duplicate enabled path", func() {
		// arrange
		dir := suite.T().TempDir()
		_, err := suite.service.Register(context.Background(), dir, "first", "", 0)
		suite.Require().Nil(err)

		// act
		_, err = suite.service.Register(context.Background(), dir, "second", "", 0)

		// assert
		suite.ErrorAs(err, &ValidationError{})
	})

	suite.Run("fail - negative poll interval", func() {
		// act
		_, err := suite.service.Register(
			context.Background(), suite.T().TempDir(), "", "", -5,
		)

		// assert
		suite.ErrorAs(err, &ValidationError{})
	})
}

func (suite *registryServiceSuite) TestRegistryService_Deregister() {
	suite.Run("success - removed repository is gone", func() {
		// arrange
		r, err := suite.service.Register(
			context.Background(), suite.T().TempDir(), "deregister-test", "", 0,
		)
		suite.Require().Nil(err)

		// act
		removed, err := suite.service.Deregister(context.Background(), r.RepositoryID)

		// assert
		suite.Nil(err)
		suite.Equal(r.RepositoryID, removed.RepositoryID)
		_, err = suite.service.GetRepositoryByID(context.Background(), r.RepositoryID)
		suite.ErrorAs(err, &NotFoundError{})
	})

	suite.Run("fail - unknown repository", func() {
		// act
		_, err := suite.service.Deregister(context.Background(), "no-such-id")

		// assert
		suite.ErrorAs(err, &NotFoundError{})
	})
}

func (suite *registryServiceSuite) TestRegistryService_SetRepositoryEnabled() {
	suite.Run("success - disable and re-enable", func() {
		// arrange
		r, err := suite.service.Register(
			context.Background(), suite.T().TempDir(), "toggle-test", "", 0,
		)
		suite.Require().Nil(err)

		// act
		disabled, err := suite.service.SetRepositoryEnabled(
			context.Background(), r.RepositoryID, false,
		)

		// assert
		suite.Nil(err)
		suite.False(disabled.Enabled)

		enabled, err := suite.service.SetRepositoryEnabled(
			context.Background(), r.RepositoryID, true,
		)
		suite.Nil(err)
		suite.True(enabled.Enabled)
	})

	suite.Run("fail - enabling would duplicate an enabled path", func() {
		// arrange
		dir := suite.T().TempDir()
		first, err := suite.service.Register(context.Background(), dir, "first", "", 0)
		suite.Require().Nil(err)
		_, err = suite.service.SetRepositoryEnabled(
			context.Background(), first.RepositoryID, false,
		)
		suite.Require().Nil(err)
		_, err = suite.service.Register(context.Background(), dir, "second", "", 0)
		suite.Require().Nil(err)

		// act
		_, err = suite.service.SetRepositoryEnabled(
			context.Background(), first.RepositoryID, true,
		)

		// assert
		suite.ErrorAs(err, &ValidationError{})
	})
}
