package booking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e.Group("/booking"))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Submit(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.flow)
	body := `{"identification_id":"ID-1","patient_name":"Ana Torres","email":"ana@example.com",` +
		`"doctor_id":"` + f.doctor.ID.String() + `","specialty_id":"` + f.cardio.ID.String() + `",` +
		`"appointment_datetime":"2026-03-04 10:30:00","reason":"checkup"}`

	rec := doRequest(t, h, http.MethodPost, "/booking/appointments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var conf Confirmation
	if err := json.Unmarshal(rec.Body.Bytes(), &conf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.Number != "APT-00001" || !conf.PatientCreated {
		t.Errorf("unexpected confirmation %+v", conf)
	}
}

func TestHandler_Submit_Invalid(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.flow)

	rec := doRequest(t, h, http.MethodPost, "/booking/appointments", `{"patient_name":"Ana"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var got Error
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message == "" || len(got.Fields) < 3 {
		t.Errorf("expected a message and the failing fields, got %+v", got)
	}

	rec = doRequest(t, h, http.MethodPost, "/booking/appointments", `{not json`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid request payload") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Doctors(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.flow)
	rec := doRequest(t, h, http.MethodPost, "/booking/doctors", `{"specialty_id":"`+f.cardio.ID.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []DoctorOption
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ID != f.doctor.ID {
		t.Errorf("unexpected doctors %+v", items)
	}
}

func TestHandler_Slots_UnknownDoctor(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.flow)
	rec := doRequest(t, h, http.MethodPost, "/booking/slots",
		`{"doctor_id":"6f1f4c52-8f6b-4a7e-9d8e-0b6a5b0a9c11","date":"2026-03-04"}`)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "doctor not found") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Specialties(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.flow)
	rec := doRequest(t, h, http.MethodGet, "/booking/specialties", "")
	var items []SpecialtyOption
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if rec.Code != http.StatusOK || len(items) != 2 {
		t.Errorf("unexpected response %d %+v", rec.Code, items)
	}
}
