package patient

import (
	"net/http"
	"time"

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
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)

	write := api.Group("", auth.RequireRole(auth.RoleRegistrar))
	write.POST("/patients", h.CreatePatient)
	write.PUT("/patients/:id", h.UpdatePatient)
	write.DELETE("/patients/:id", h.DeletePatient)
}

// patientRequest has no age field: age is always derived from birth_date.
type patientRequest struct {
	Name             string  `json:"name" validate:"notblank"`
	IdentificationID string  `json:"identification_id" validate:"notblank"`
	BirthDate        string  `json:"birth_date" validate:"omitempty,isodate"`
	Gender           *string `json:"gender" validate:"omitempty,oneof=male female other"`
	BloodType        *string `json:"blood_type" validate:"omitempty,oneof=a+ a- b+ b- ab+ ab- o+ o-"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Address          *string `json:"address"`
	Allergies        *string `json:"allergies"`
	MedicalHistory   *string `json:"medical_history"`
	EmergencyContact *string `json:"emergency_contact"`
	EmergencyPhone   *string `json:"emergency_phone"`
	UserID           *string `json:"user_id"`
	Active           *bool   `json:"active"`
}

func (r patientRequest) apply(p *Patient) {
	p.Name = r.Name
	p.IdentificationID = r.IdentificationID
	p.BirthDate = nil
	if r.BirthDate != "" {
		if d, err := time.Parse("2006-01-02", r.BirthDate); err == nil {
			p.BirthDate = &d
		}
	}
	p.Gender = r.Gender
	p.BloodType = r.BloodType
	p.Phone = r.Phone
	p.Email = r.Email
	p.Address = r.Address
	p.Allergies = r.Allergies
	p.MedicalHistory = r.MedicalHistory
	p.EmergencyContact = r.EmergencyContact
	p.EmergencyPhone = r.EmergencyPhone
	p.UserID = r.UserID
	p.Active = r.Active == nil || *r.Active
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var p Patient
	req.apply(&p)
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients handles GET /patients?q= matching name, identification id or phone.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req patientRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	req.apply(p)
	if err := h.svc.UpdatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
