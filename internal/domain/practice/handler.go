package practice

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
	read := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))
	read.GET("/specialties", h.ListSpecialties)
	read.GET("/specialties/:id", h.GetSpecialty)
	read.GET("/doctors", h.ListDoctors)
	read.GET("/doctors/:id", h.GetDoctor)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/specialties", h.CreateSpecialty)
	write.PUT("/specialties/:id", h.UpdateSpecialty)
	write.DELETE("/specialties/:id", h.DeleteSpecialty)
	write.POST("/doctors", h.CreateDoctor)
	write.PUT("/doctors/:id", h.UpdateDoctor)
	write.DELETE("/doctors/:id", h.DeleteDoctor)
}

type specialtyRequest struct {
	Code            string  `json:"code" validate:"notblank,max=16"`
	Name            string  `json:"name" validate:"notblank"`
	Description     *string `json:"description"`
	DefaultDuration float64 `json:"default_duration" validate:"gte=0,lte=8"`
	Color           int     `json:"color"`
	Active          *bool   `json:"active"`
}

func (r specialtyRequest) apply(s *Specialty) {
	s.Code = r.Code
	s.Name = r.Name
	s.Description = r.Description
	s.DefaultDuration = r.DefaultDuration
	s.Color = r.Color
	s.Active = r.Active == nil || *r.Active
}

type doctorRequest struct {
	Name             string      `json:"name" validate:"notblank"`
	LicenseNumber    string      `json:"license_number" validate:"notblank"`
	SpecialtyIDs     []uuid.UUID `json:"specialty_ids"`
	Phone            *string     `json:"phone"`
	Email            *string     `json:"email" validate:"omitempty,email"`
	ConsultationRoom *string     `json:"consultation_room"`
	Biography        *string     `json:"biography"`
	YearsExperience  int         `json:"years_experience" validate:"gte=0,lte=70"`
	UserID           *string     `json:"user_id"`
	Color            int         `json:"color"`
	Active           *bool       `json:"active"`
}

func (r doctorRequest) apply(d *Doctor) {
	d.Name = r.Name
	d.LicenseNumber = r.LicenseNumber
	d.SpecialtyIDs = r.SpecialtyIDs
	d.Phone = r.Phone
	d.Email = r.Email
	d.ConsultationRoom = r.ConsultationRoom
	d.Biography = r.Biography
	d.YearsExperience = r.YearsExperience
	d.UserID = r.UserID
	d.Color = r.Color
	d.Active = r.Active == nil || *r.Active
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Specialty Handlers --

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var req specialtyRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var sp Specialty
	req.apply(&sp)
	if err := h.svc.CreateSpecialty(c.Request().Context(), &sp); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) GetSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpecialty(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) ListSpecialties(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	items, total, err := h.svc.ListSpecialties(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req specialtyRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	sp, err := h.svc.GetSpecialty(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	req.apply(sp)
	if err := h.svc.UpdateSpecialty(c.Request().Context(), sp); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) DeleteSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecialty(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var d Doctor
	req.apply(&d)
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DoctorFilter{Name: c.QueryParam("name")}
	f.ActiveOnly, _ = strconv.ParseBool(c.QueryParam("active"))
	if sid := c.QueryParam("specialty_id"); sid != "" {
		id, err := uuid.Parse(sid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty_id")
		}
		f.SpecialtyID = &id
	}
	items, total, err := h.svc.SearchDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req doctorRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	req.apply(d)
	if err := h.svc.UpdateDoctor(c.Request().Context(), d); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
