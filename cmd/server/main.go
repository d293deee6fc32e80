package main

import (
	"context"
	"log"

	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/handler"
	"github.com/haatos/multi-ci/internal/service"
	"github.com/haatos/multi-ci/internal/settings"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/haatos/multi-ci/internal/vcs"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb)

	repositoryStore := store.NewRepositorySQLiteStore(rdb, rwdb)
	runStore := store.NewRunSQLiteStore(rdb, rwdb)

	registrySvc := service.NewRegistryService(repositoryStore)
	runSvc := service.NewRunService(runStore)
	executor := service.NewExecutor(
		runStore,
		service.NewFileResolver(),
		settings.Settings.MaxRunOutputBytes,
		settings.Settings.DefaultStepTimeout,
	)
	schedulerSvc := service.NewSchedulerService(
		runStore,
		registrySvc,
		executor,
		settings.Settings.MaxConcurrentRuns,
		settings.Settings.MaxRunsPerRepo,
		settings.Settings.MaxQueuedRuns,
	)
	detector, err := service.NewChangeDetector(
		registrySvc,
		schedulerSvc,
		vcs.NewGitRevisionReader(),
		settings.Settings.PollInterval,
		settings.Settings.WatchWorkingCopies,
	)
	if err != nil {
		log.Fatal("fatal error creating change detector:", err)
	}

	ctx := context.Background()
	if err := schedulerSvc.Recover(ctx); err != nil {
		log.Fatal("fatal error recovering scheduler state:", err)
	}
	schedulerSvc.Start(ctx)
	if err := detector.Start(ctx); err != nil {
		log.Fatal("fatal error starting change detector:", err)
	}

	h := handler.NewRepositoryHandler(registrySvc, schedulerSvc, detector, runSvc)
	e := setupEcho()
	handler.SetupRoutes(e, h)

	internal.GracefulShutdown(
		e,
		settings.Settings.Port,
		settings.Settings.ShutdownTimeout,
		func(shutdownCtx context.Context) {
			detector.Stop()
			schedulerSvc.Shutdown(shutdownCtx)
		},
	)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
