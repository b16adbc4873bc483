package prescription

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/domain/medication"
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
	read := api.Group("/prescriptions", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))
	read.GET("", h.SearchPrescriptions)
	read.GET("/:id", h.GetPrescription)

	write := api.Group("/prescriptions", auth.RequireRole(auth.RolePhysician))
	write.POST("", h.CreatePrescription)
	write.PUT("/:id", h.UpdatePrescription)
	write.DELETE("/:id", h.DeletePrescription)
	write.POST("/:id/lines", h.AddLine)
	write.PUT("/:id/lines/:line_id", h.UpdateLine)
	write.DELETE("/:id/lines/:line_id", h.RemoveLine)
	write.POST("/:id/issue", h.Issue)

	pharmacy := api.Group("/prescriptions", auth.RequireRole(auth.RolePharmacist))
	pharmacy.POST("/:id/dispense", h.Dispense)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

type lineRequest struct {
	Sequence     int       `json:"sequence" validate:"gte=0"`
	MedicationID uuid.UUID `json:"medication_id" validate:"required"`
	Quantity     *float64  `json:"quantity" validate:"omitempty,gt=0"`
	Dosage       *string   `json:"dosage"`
	Frequency    *string   `json:"frequency"`
	Duration     *string   `json:"duration"`
	Instructions *string   `json:"instructions"`
}

func (r lineRequest) line() *Line {
	l := &Line{
		Sequence:     r.Sequence,
		MedicationID: r.MedicationID,
		Quantity:     1,
		Dosage:       r.Dosage,
		Frequency:    r.Frequency,
		Duration:     r.Duration,
		Instructions: r.Instructions,
	}
	if r.Quantity != nil {
		l.Quantity = *r.Quantity
	}
	return l
}

type prescriptionRequest struct {
	PatientID           uuid.UUID     `json:"patient_id" validate:"required"`
	DoctorID            uuid.UUID     `json:"doctor_id" validate:"required"`
	AppointmentID       *uuid.UUID    `json:"appointment_id"`
	IssueDate           string        `json:"issue_date" validate:"omitempty,isodate"`
	ValidityDays        int           `json:"validity_days" validate:"gte=0,lte=365"`
	Diagnosis           *string       `json:"diagnosis"`
	GeneralInstructions *string       `json:"general_instructions"`
	Notes               *string       `json:"notes"`
	Lines               []lineRequest `json:"lines" validate:"dive"`
}

func (r prescriptionRequest) apply(p *Prescription) {
	p.PatientID = r.PatientID
	p.DoctorID = r.DoctorID
	p.AppointmentID = r.AppointmentID
	if r.IssueDate != "" {
		p.IssueDate, _ = time.Parse("2006-01-02", r.IssueDate)
	}
	p.ValidityDays = r.ValidityDays
	p.Diagnosis = r.Diagnosis
	p.GeneralInstructions = r.GeneralInstructions
	p.Notes = r.Notes
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req prescriptionRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var p Prescription
	req.apply(&p)
	for _, lr := range req.Lines {
		p.Lines = append(p.Lines, lr.line())
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Sort: c.QueryParam("sort")}
	for name, dst := range map[string]**uuid.UUID{
		"patient_id": &f.PatientID, "doctor_id": &f.DoctorID, "appointment_id": &f.AppointmentID,
	} {
		if v := c.QueryParam(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &id
		}
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Statuses = []Status{st}
	}
	items, total, err := h.svc.SearchPrescriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req prescriptionRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	p := Prescription{ID: id}
	req.apply(&p)
	if err := h.svc.UpdatePrescription(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePrescription(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddLine(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req lineRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	l := req.line()
	if err := h.svc.AddLine(c.Request().Context(), id, l); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) UpdateLine(c echo.Context) error {
	lineID, err := parseID(c, "line_id")
	if err != nil {
		return err
	}
	var req lineRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	l := req.line()
	l.ID = lineID
	if err := h.svc.UpdateLine(c.Request().Context(), l); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) RemoveLine(c echo.Context) error {
	lineID, err := parseID(c, "line_id")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveLine(c.Request().Context(), lineID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type issueResponse struct {
	Prescription *Prescription             `json:"prescription"`
	Warnings     []medication.StockWarning `json:"warnings"`
	Messages     []string                  `json:"messages,omitempty"`
}

func (h *Handler) Issue(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, warnings, err := h.svc.Issue(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	resp := issueResponse{Prescription: p, Warnings: warnings}
	if resp.Warnings == nil {
		resp.Warnings = []medication.StockWarning{}
	}
	for _, w := range warnings {
		resp.Messages = append(resp.Messages, w.String())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Dispense(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
