package sweep

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/auth"
)

// Handler lets an administrator or an external cron trigger sweeps over HTTP.
type Handler struct {
	runner *Runner
}

func NewHandler(r *Runner) *Handler {
	return &Handler{runner: r}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin/sweeps", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.POST("", h.RunAll)
	g.POST("/:name", h.Run)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"sweeps": h.runner.Names()})
}

// Run handles POST /admin/sweeps/:name?at=RFC3339.
func (h *Handler) Run(c echo.Context) error {
	now, err := parseAt(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	res, err := h.runner.Run(c.Request().Context(), name, now)
	if errors.Is(err, ErrSkipped) {
		return c.JSON(http.StatusAccepted, Report{Name: name, Skipped: true})
	}
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, Report{Name: name, Result: res})
}

func (h *Handler) RunAll(c echo.Context) error {
	now, err := parseAt(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.runner.RunAll(c.Request().Context(), now))
}

func parseAt(c echo.Context) (time.Time, error) {
	at := c.QueryParam("at")
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "at must be an RFC3339 timestamp")
	}
	return t, nil
}
