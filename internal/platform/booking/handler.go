package booking

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/apperr"
)

// Handler serves the booking flow. Routes are public; the caller mounts
// them behind rate limiting.
type Handler struct {
	flow *Flow
}

func NewHandler(flow *Flow) *Handler {
	return &Handler{flow: flow}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/specialties", h.Specialties)
	g.POST("/doctors", h.Doctors)
	g.POST("/slots", h.Slots)
	g.POST("/appointments", h.Submit)
}

// respondError writes err as a booking error body instead of handing it to
// echo's error handler, so every failure carries a readable message.
func respondError(c echo.Context, err error) error {
	be := fail(err)
	return c.JSON(apperr.StatusCode(&apperr.Error{Kind: be.Kind}), be)
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return &Error{Kind: apperr.KindValidation, Message: "invalid request payload"}
	}
	return nil
}

func (h *Handler) Specialties(c echo.Context) error {
	items, err := h.flow.Specialties(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Doctors(c echo.Context) error {
	var req DoctorsRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	items, err := h.flow.Doctors(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Slots(c echo.Context) error {
	var req SlotsRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	slots, err := h.flow.Slots(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) Submit(c echo.Context) error {
	var req Request
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	conf, err := h.flow.Submit(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, conf)
}
