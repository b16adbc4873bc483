package prescription

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/validation"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validation.New()
	return NewHandler(f.svc), f, e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
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

func TestHandler_CreatePrescription(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patient.ID.String() + `","doctor_id":"` + f.doctor.ID.String() +
		`","issue_date":"2026-03-01","validity_days":15,"lines":[{"medication_id":"` + f.amox.ID.String() + `"}]}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["number"] != "RX-00001" || got["status"] != "draft" {
		t.Errorf("unexpected body %v", got)
	}
	if !strings.HasPrefix(got["expiry_date"].(string), "2026-03-16") {
		t.Errorf("unexpected expiry %v", got["expiry_date"])
	}
	if _, leaked := got["access_token"]; leaked {
		t.Error("access token must not be serialised")
	}
	lines, _ := got["lines"].([]interface{})
	if len(lines) != 1 || lines[0].(map[string]interface{})["quantity"] != 1.0 {
		t.Errorf("expected one line with default quantity, got %v", got["lines"])
	}
}

func TestHandler_CreatePrescription_BadInput(t *testing.T) {
	h, f, e := newTestHandler()
	tests := map[string]string{
		"bad date":       `{"patient_id":"` + f.patient.ID.String() + `","doctor_id":"` + f.doctor.ID.String() + `","issue_date":"10/03/2026"}`,
		"validity":       `{"patient_id":"` + f.patient.ID.String() + `","doctor_id":"` + f.doctor.ID.String() + `","validity_days":400}`,
		"missing doctor": `{"patient_id":"` + f.patient.ID.String() + `"}`,
		"line quantity":  `{"patient_id":"` + f.patient.ID.String() + `","doctor_id":"` + f.doctor.ID.String() + `","lines":[{"medication_id":"` + f.amox.ID.String() + `","quantity":-1}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())
			expectHTTPStatus(t, h.CreatePrescription(c), http.StatusBadRequest)
		})
	}
}

func TestHandler_Issue_WithWarnings(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.draft(t, &Line{MedicationID: f.insulin.ID, Quantity: 3})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Issue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got issueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Prescription.Status != StatusIssued || len(got.Warnings) != 1 || len(got.Messages) != 1 {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestHandler_Issue_Empty(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.draft(t)
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPStatus(t, h.Issue(c), http.StatusBadRequest)
}

func TestHandler_Dispense_Draft(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.draft(t, &Line{MedicationID: f.amox.ID, Quantity: 1})
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPStatus(t, h.Dispense(c), http.StatusConflict)
}

func TestHandler_AddLine(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.draft(t)
	body := `{"medication_id":"` + f.amox.ID.String() + `","quantity":14,"dosage":"1 capsule"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.AddLine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(f.repo.lines) != 1 {
		t.Errorf("expected 1 stored line, got %d", len(f.repo.lines))
	}
}

func TestHandler_GetPrescription_BadID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.GetPrescription(c), http.StatusBadRequest)
}

func TestHandler_SearchPrescriptions(t *testing.T) {
	h, f, e := newTestHandler()
	f.draft(t)
	f.draft(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=draft&patient_id="+f.patient.ID.String(), nil), rec)
	if err := h.SearchPrescriptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["total"] != 2.0 {
		t.Errorf("expected total 2, got %v", got)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=void", nil), httptest.NewRecorder())
	expectHTTPStatus(t, h.SearchPrescriptions(c), http.StatusBadRequest)
}
