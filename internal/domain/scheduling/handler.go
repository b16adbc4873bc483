package scheduling

import (
	"context"
	"net/http"
	"strconv"
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
	staff := api.Group("", auth.RequireRole(auth.RoleRegistrar, auth.RolePhysician, auth.RoleNurse))
	staff.GET("/doctors/:id/schedule", h.ListSchedule)
	staff.GET("/doctors/:id/stats", h.DoctorStats)
	staff.GET("/appointments", h.SearchAppointments)
	staff.GET("/appointments/slots", h.Slots)
	staff.GET("/appointments/:id", h.GetAppointment)

	sched := api.Group("", auth.RequireRole(auth.RoleRegistrar))
	sched.POST("/doctors/:id/schedule", h.CreateScheduleEntry)
	sched.PUT("/schedule/:id", h.UpdateScheduleEntry)
	sched.DELETE("/schedule/:id", h.DeleteScheduleEntry)

	desk := api.Group("/appointments", auth.RequireRole(auth.RoleRegistrar, auth.RolePhysician))
	desk.POST("", h.CreateAppointment)
	desk.PUT("/:id", h.UpdateAppointment)
	desk.DELETE("/:id", h.DeleteAppointment)
	desk.POST("/:id/confirm", h.Confirm)
	desk.POST("/:id/cancel", h.Cancel)

	clinical := api.Group("/appointments", auth.RequireRole(auth.RolePhysician))
	clinical.POST("/:id/start", h.Start)
	clinical.POST("/:id/complete", h.Complete)
	clinical.POST("/:id/prescription", h.CreatePrescription)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Schedule --

type scheduleRequest struct {
	DayOfWeek    int     `json:"day_of_week" validate:"gte=0,lte=6"`
	HourFrom     float64 `json:"hour_from" validate:"gte=0,lt=24"`
	HourTo       float64 `json:"hour_to" validate:"gt=0,lte=24"`
	SlotDuration float64 `json:"slot_duration" validate:"gte=0,lte=480"`
	Active       *bool   `json:"active"`
}

func (r scheduleRequest) apply(e *ScheduleEntry) {
	e.DayOfWeek = r.DayOfWeek
	e.HourFrom = r.HourFrom
	e.HourTo = r.HourTo
	if r.SlotDuration > 0 {
		e.SlotDuration = r.SlotDuration
	}
	e.Active = r.Active == nil || *r.Active
}

func (h *Handler) CreateScheduleEntry(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e := ScheduleEntry{DoctorID: doctorID}
	req.apply(&e)
	if err := h.svc.CreateScheduleEntry(c.Request().Context(), &e); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListSchedule(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	items, err := h.svc.ListSchedule(c.Request().Context(), doctorID, activeOnly)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*ScheduleEntry{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateScheduleEntry(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.GetScheduleEntry(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	req.apply(e)
	if err := h.svc.UpdateScheduleEntry(c.Request().Context(), e); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteScheduleEntry(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteScheduleEntry(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DoctorStats(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.DoctorStats(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Slots serves GET /appointments/slots?doctor_id=&date=YYYY-MM-DD.
func (h *Handler) Slots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	date, err := time.ParseInLocation("2006-01-02", c.QueryParam("date"), h.svc.Location())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Appointment --

type appointmentRequest struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	DoctorID        uuid.UUID `json:"doctor_id" validate:"required"`
	SpecialtyID     uuid.UUID `json:"specialty_id" validate:"required"`
	AppointmentDate time.Time `json:"appointment_date" validate:"required"`
	Duration        float64   `json:"duration" validate:"gte=0,lte=8"`
	Reason          *string   `json:"reason"`
	Notes           *string   `json:"notes"`
}

func (r appointmentRequest) apply(a *Appointment) {
	a.PatientID = r.PatientID
	a.DoctorID = r.DoctorID
	a.SpecialtyID = r.SpecialtyID
	a.AppointmentDate = r.AppointmentDate
	a.Duration = r.Duration
	a.Reason = r.Reason
	a.Notes = r.Notes
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"notblank"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req appointmentRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var a Appointment
	req.apply(&a)
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AppointmentFilter{Sort: c.QueryParam("sort")}
	for name, dst := range map[string]**uuid.UUID{"patient_id": &f.PatientID, "doctor_id": &f.DoctorID} {
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
	for name, dst := range map[string]**time.Time{"from": &f.StartFrom, "to": &f.StartTo} {
		if v := c.QueryParam(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, name+" must be RFC3339")
			}
			*dst = &t
		}
	}
	items, total, err := h.svc.SearchAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req appointmentRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	a := Appointment{ID: id}
	req.apply(&a)
	if err := h.svc.UpdateAppointment(c.Request().Context(), &a); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Confirm(c echo.Context) error {
	return h.transition(c, h.svc.Confirm)
}

func (h *Handler) Start(c echo.Context) error {
	return h.transition(c, h.svc.Start)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, uuid.UUID) (*Appointment, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := fn(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pid, created, err := h.svc.CreatePrescription(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{"prescription_id": pid, "created": created})
}
