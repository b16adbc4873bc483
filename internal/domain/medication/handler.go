package medication

import (
	"net/http"
	"strconv"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/medications", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))
	read.GET("", h.ListMedications)
	read.GET("/:id", h.GetMedication)

	write := api.Group("/medications", auth.RequireRole(auth.RolePharmacist))
	write.POST("", h.CreateMedication)
	write.PUT("/:id", h.UpdateMedication)
	write.DELETE("/:id", h.DeleteMedication)
	write.POST("/:id/stock", h.AdjustStock)
}

type medicationRequest struct {
	Name                 string  `json:"name" validate:"notblank"`
	ActiveIngredient     *string `json:"active_ingredient"`
	Concentration        *string `json:"concentration"`
	PharmaceuticalForm   *string `json:"pharmaceutical_form" validate:"omitempty,oneof=tablet capsule syrup injection cream ointment drops inhaler suppository patch other"`
	RequiresPrescription *bool   `json:"requires_prescription"`
	Contraindications    *string `json:"contraindications"`
	QtyAvailable         float64 `json:"qty_available" validate:"gte=0"`
	Active               *bool   `json:"active"`
}

func (r medicationRequest) apply(m *Medication) {
	m.Name = r.Name
	m.ActiveIngredient = r.ActiveIngredient
	m.Concentration = r.Concentration
	m.PharmaceuticalForm = r.PharmaceuticalForm
	m.RequiresPrescription = r.RequiresPrescription == nil || *r.RequiresPrescription
	m.Contraindications = r.Contraindications
	m.QtyAvailable = r.QtyAvailable
	m.Active = r.Active == nil || *r.Active
}

type stockRequest struct {
	Delta float64 `json:"delta" validate:"required"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var req medicationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var m Medication
	req.apply(&m)
	if err := h.svc.CreateMedication(c.Request().Context(), &m); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Query: c.QueryParam("q"), Form: c.QueryParam("form")}
	f.ActiveOnly, _ = strconv.ParseBool(c.QueryParam("active"))
	items, total, err := h.svc.SearchMedications(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req medicationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	req.apply(m)
	if err := h.svc.UpdateMedication(c.Request().Context(), m); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedication(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req stockRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	qty, err := h.svc.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": id, "qty_available": qty})
}
