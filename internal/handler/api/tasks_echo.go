package api

import (
	"context"
	"net/http"
	"time"

	models "CoinPull/internal/domain/models"
	"CoinPull/internal/service/ratelimit"
	xhttp "CoinPull/pkg/http"
	xlogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"

	"github.com/labstack/echo/v4"
)

// TaskSource is what the handler reads task state from.
type TaskSource interface {
	Reports() []models.TaskReport
	Report(id string) (models.TaskReport, bool)
	StopTask(id string) (models.TaskReport, bool)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TasksEchoHandler exposes collection task state over Echo.
type TasksEchoHandler struct {
	logger *xlogger.Logger
	tasks  TaskSource
	health HealthChecker
	rl     *ratelimit.Limiter
}

func NewTasksEchoHandler(logger *xlogger.Logger, tasks TaskSource, health HealthChecker) *TasksEchoHandler {
	return &TasksEchoHandler{logger: logger, tasks: tasks, health: health, rl: ratelimit.New()}
}

func (h *TasksEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/tasks", h.List)
	g.GET("/tasks/:id", h.Get)
	g.POST("/tasks/:id/stop", h.Stop)
}

func (h *TasksEchoHandler) Health(c echo.Context) error {
	body := map[string]interface{}{"status": "ok"}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			h.logger.Warn("mirror health check failed", xlogger.Error(err))
			body["status"] = "degraded"
			body["mirror"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}

func (h *TasksEchoHandler) List(c echo.Context) error {
	req := &models.TaskListRequest{}
	if err := xhttp.Bind(c, req); err != nil {
		return xhttp.Fail(c, err)
	}
	var since time.Time
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.Fail(c, xhttp.Invalid("since", "since must be RFC3339 or unix seconds"))
		}
		since = t
	}

	all := h.tasks.Reports()
	rows := make([]models.TaskReport, 0, min(len(all), req.Limit))
	var total int64
	for _, r := range all {
		if req.Status != "" && string(r.Status) != req.Status {
			continue
		}
		if req.Exchange != "" && r.Exchange != req.Exchange {
			continue
		}
		if !since.IsZero() && r.StartTime.Before(since) {
			continue
		}
		total++
		if len(rows) < req.Limit {
			rows = append(rows, r)
		}
	}
	return xhttp.List(c, rows, total)
}

func (h *TasksEchoHandler) Get(c echo.Context) error {
	req := &models.TaskIDRequest{}
	if err := xhttp.Bind(c, req); err != nil {
		return xhttp.Fail(c, err)
	}
	r, ok := h.tasks.Report(req.ID)
	if !ok {
		return xhttp.Fail(c, xhttp.NotFound("task %s not found", req.ID))
	}
	return xhttp.OK(c, r)
}

func (h *TasksEchoHandler) Stop(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":stop", 5, 1) {
		h.logger.Warn("tasks.stop rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.Fail(c, xhttp.TooManyRequests("too many stop requests"))
	}
	req := &models.TaskIDRequest{}
	if err := xhttp.Bind(c, req); err != nil {
		return xhttp.Fail(c, err)
	}
	r, ok := h.tasks.StopTask(req.ID)
	if !ok {
		return xhttp.Fail(c, xhttp.NotFound("task %s not found", req.ID))
	}
	if r.Status.Terminal() {
		return xhttp.Fail(c, xhttp.Conflict("task already %s", r.Status))
	}
	h.logger.Info("task stop requested", xlogger.String("task_id", req.ID))
	return xhttp.OK(c, r)
}
