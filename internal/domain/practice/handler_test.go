package practice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/validation"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	e := echo.New()
	e.Validator = validation.New()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_CreateSpecialty(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"code":"CARD","name":"Cardiology"}`), rec)

	if err := h.CreateSpecialty(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var sp Specialty
	_ = json.Unmarshal(rec.Body.Bytes(), &sp)
	if !sp.Active || sp.DefaultDuration != 0.5 {
		t.Errorf("expected active specialty with default duration, got %+v", sp)
	}
}

func TestHandler_CreateSpecialty_Invalid(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"code":" ","name":"Cardiology","default_duration":12}`), httptest.NewRecorder())
	expectHTTPStatus(t, h.CreateSpecialty(c), http.StatusBadRequest)
}

func TestHandler_GetSpecialty_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPStatus(t, h.GetSpecialty(c), http.StatusNotFound)
}

func TestHandler_GetSpecialty_BadID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.GetSpecialty(c), http.StatusBadRequest)
}

func TestHandler_CreateDoctorAndList(t *testing.T) {
	h, e := newTestHandler()
	sp := &Specialty{Code: "CARD", Name: "Cardiology", Active: true}
	_ = h.svc.CreateSpecialty(context.Background(), sp)

	body := `{"name":"Elena Vega","license_number":"LIC-1","specialty_ids":["` + sp.ID.String() + `"],"email":"elena@hospital.example"}`
	rec := httptest.NewRecorder()
	if err := h.CreateDoctor(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?specialty_id="+sp.ID.String()+"&active=true", nil)
	if err := h.ListDoctors(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 doctor, got %d", resp.Total)
	}
}

func TestHandler_CreateDoctor_BadEmail(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Elena Vega","license_number":"LIC-1","email":"nope"}`
	expectHTTPStatus(t, h.CreateDoctor(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_UpdateDoctor(t *testing.T) {
	h, e := newTestHandler()
	d := &Doctor{Name: "Elena Vega", LicenseNumber: "LIC-1", Active: true}
	_ = h.svc.CreateDoctor(context.Background(), d)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"name":"Elena Vega Ruiz","license_number":"LIC-1","active":false}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.UpdateDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := h.svc.GetDoctor(context.Background(), d.ID)
	if got.Name != "Elena Vega Ruiz" || got.Active {
		t.Errorf("update not applied: %+v", got)
	}
}
