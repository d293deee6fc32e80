package handler

import (
	"context"
	"net/http"

	"github.com/haatos/multi-ci/internal"
	"github.com/haatos/multi-ci/internal/store"
	"github.com/labstack/echo/v4"
)

const maxRunsPerPage int64 = 10

type RegistryServicer interface {
	Register(
		ctx context.Context,
		path, name, scriptPath string,
		pollIntervalSeconds int64,
	) (*store.Repository, error)
	Deregister(ctx context.Context, id string) (*store.Repository, error)
	GetRepositoryByID(ctx context.Context, id string) (*store.Repository, error)
	ListRepositories(ctx context.Context) ([]*store.Repository, error)
	SetRepositoryEnabled(ctx context.Context, id string, enabled bool) (*store.Repository, error)
}

type SchedulerServicer interface {
	Enqueue(
		ctx context.Context,
		repositoryID, triggerRevision, triggerKind string,
	) (*store.Run, error)
	Cancel(ctx context.Context, runID int64) error
	CancelRepositoryRuns(ctx context.Context, repositoryID string)
}

type DetectorServicer interface {
	Watch(repository *store.Repository) error
	Unwatch(repositoryID string)
	Nudge(ctx context.Context, repositoryID string)
}

type RunServicer interface {
	GetRunWithSteps(ctx context.Context, id int64) (*store.Run, []store.StepResult, error)
	GetLatestRepositoryRun(ctx context.Context, repositoryID string) (*store.Run, error)
	ListActiveRuns(ctx context.Context) ([]store.Run, error)
	ListRepositoryRunsPaginated(
		ctx context.Context,
		repositoryID string,
		limit, offset int64,
	) ([]store.Run, error)
	CountRepositoryRuns(ctx context.Context, repositoryID string) (int64, error)
}

type RepositoryHandler struct {
	registry  RegistryServicer
	scheduler SchedulerServicer
	detector  DetectorServicer
	runs      RunServicer
}

func NewRepositoryHandler(
	registry RegistryServicer,
	scheduler SchedulerServicer,
	detector DetectorServicer,
	runs RunServicer,
) *RepositoryHandler {
	return &RepositoryHandler{
		registry:  registry,
		scheduler: scheduler,
		detector:  detector,
		runs:      runs,
	}
}

func SetupRoutes(e *echo.Echo, h *RepositoryHandler) {
	api := e.Group("/api")
	api.POST("/repositories", h.PostRepository)
	api.GET("/repositories", h.GetRepositories)
	api.GET("/repositories/:repository_id", h.GetRepository)
	api.DELETE("/repositories/:repository_id", h.DeleteRepository)
	api.PATCH("/repositories/:repository_id/enabled", h.PatchRepositoryEnabled)
	api.POST("/repositories/:repository_id/runs", h.PostRepositoryRun)
	api.POST("/repositories/:repository_id/poll", h.PostRepositoryPoll)
	api.GET("/repositories/:repository_id/runs", h.GetRepositoryRuns)
	api.GET("/runs", h.GetActiveRuns)
	api.GET("/runs/:run_id", h.GetRun)
	api.POST("/runs/:run_id/cancel", h.PostCancelRun)
}

func (h *RepositoryHandler) PostRepository(c echo.Context) error {
	params := new(RegisterRepositoryParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	r, err := h.registry.Register(
		c.Request().Context(),
		params.Path,
		params.Name,
		params.ScriptPath,
		params.PollIntervalSeconds,
	)
	if err != nil {
		return err
	}

	if err := h.detector.Watch(r); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toRepositoryResponse(r, nil))
}

func (h *RepositoryHandler) GetRepositories(c echo.Context) error {
	ctx := c.Request().Context()
	repositories, err := h.registry.ListRepositories(ctx)
	if err != nil {
		return err
	}

	resp := make([]RepositoryResponse, 0, len(repositories))
	for _, r := range repositories {
		latest, err := h.runs.GetLatestRepositoryRun(ctx, r.RepositoryID)
		if err != nil {
			return err
		}
		resp = append(resp, toRepositoryResponse(r, latest))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RepositoryHandler) GetRepository(c echo.Context) error {
	params := new(RepositoryParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid repository id")
	}

	ctx := c.Request().Context()
	r, err := h.registry.GetRepositoryByID(ctx, params.RepositoryID)
	if err != nil {
		return err
	}
	latest, err := h.runs.GetLatestRepositoryRun(ctx, r.RepositoryID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRepositoryResponse(r, latest))
}

// DeleteRepository deregisters the repository, cancels its in-flight runs
// and removes it from the watch set. Run history stays queryable by run id.
func (h *RepositoryHandler) DeleteRepository(c echo.Context) error {
	params := new(RepositoryParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid repository id")
	}

	ctx := c.Request().Context()
	r, err := h.registry.Deregister(ctx, params.RepositoryID)
	if err != nil {
		return err
	}

	h.detector.Unwatch(r.RepositoryID)
	h.scheduler.CancelRepositoryRuns(ctx, r.RepositoryID)

	return c.NoContent(http.StatusNoContent)
}

func (h *RepositoryHandler) PatchRepositoryEnabled(c echo.Context) error {
	params := new(PatchRepositoryEnabledParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	r, err := h.registry.SetRepositoryEnabled(ctx, params.RepositoryID, params.Enabled)
	if err != nil {
		return err
	}

	if r.Enabled {
		if err := h.detector.Watch(r); err != nil {
			return err
		}
	} else {
		h.detector.Unwatch(r.RepositoryID)
	}

	return c.JSON(http.StatusOK, toRepositoryResponse(r, nil))
}

func (h *RepositoryHandler) PostRepositoryRun(c echo.Context) error {
	params := new(TriggerRunParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	// lookup first so a missing repository is a 404, not a queued orphan
	r, err := h.registry.GetRepositoryByID(ctx, params.RepositoryID)
	if err != nil {
		return err
	}

	run, err := h.scheduler.Enqueue(
		ctx, r.RepositoryID, params.Revision, internal.TriggerManual,
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toRunResponse(run, nil))
}

func (h *RepositoryHandler) PostRepositoryPoll(c echo.Context) error {
	params := new(RepositoryParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid repository id")
	}

	ctx := c.Request().Context()
	r, err := h.registry.GetRepositoryByID(ctx, params.RepositoryID)
	if err != nil {
		return err
	}

	h.detector.Nudge(ctx, r.RepositoryID)
	return c.NoContent(http.StatusAccepted)
}

func (h *RepositoryHandler) GetRepositoryRuns(c echo.Context) error {
	params := new(ListRunsParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if params.Page < 1 {
		params.Page = 1
	}

	ctx := c.Request().Context()
	// history is intentionally readable for removed repositories
	runs, err := h.runs.ListRepositoryRunsPaginated(
		ctx,
		params.RepositoryID,
		maxRunsPerPage,
		(params.Page-1)*maxRunsPerPage,
	)
	if err != nil {
		return err
	}
	count, err := h.runs.CountRepositoryRuns(ctx, params.RepositoryID)
	if err != nil {
		return err
	}

	resp := make([]RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toRunResponse(&runs[i], nil))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total": count,
		"page":  params.Page,
		"runs":  resp,
	})
}

func (h *RepositoryHandler) GetActiveRuns(c echo.Context) error {
	runs, err := h.runs.ListActiveRuns(c.Request().Context())
	if err != nil {
		return err
	}
	resp := make([]RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toRunResponse(&runs[i], nil))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RepositoryHandler) GetRun(c echo.Context) error {
	params := new(RunParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	run, steps, err := h.runs.GetRunWithSteps(c.Request().Context(), params.RunID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRunResponse(run, steps))
}

func (h *RepositoryHandler) PostCancelRun(c echo.Context) error {
	params := new(RunParams)
	if err := c.Bind(params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	if err := h.scheduler.Cancel(c.Request().Context(), params.RunID); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
