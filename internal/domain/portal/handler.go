package portal

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/auth"
	"github.com/hospital/appointments/internal/platform/validation"
	"github.com/hospital/appointments/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated portal under api and, when public
// is not nil, the token-only detail views that emailed links point at.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	own := api.Group("/portal", auth.RequireRole(auth.RolePatient))
	own.GET("/summary", h.Summary)
	own.GET("/appointments", h.ListAppointments)
	own.GET("/prescriptions", h.ListPrescriptions)
	own.POST("/appointments/:id/cancel", h.CancelAppointment)

	detail := api.Group("/portal")
	detail.GET("/appointments/:id", h.GetAppointment)
	detail.GET("/prescriptions/:id", h.GetPrescription)

	if public != nil {
		link := public.Group("/portal")
		link.GET("/appointments/:id", h.GetAppointment)
		link.GET("/prescriptions/:id", h.GetPrescription)
	}
}

func userID(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Summary(c echo.Context) error {
	s, err := h.svc.Summary(c.Request().Context(), userID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.PortalFromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), userID(c), c.QueryParam("sortby"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.PortalFromContext(c)
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), userID(c), c.QueryParam("sortby"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), userID(c), id, c.QueryParam("access_token"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rx, err := h.svc.GetPrescription(c.Request().Context(), userID(c), id, c.QueryParam("access_token"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"notblank,max=500"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), userID(c), id, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
