package medication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func TestHandler_CreateMedication(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Amoxicillin","pharmaceutical_form":"capsule","qty_available":12}`), rec)

	if err := h.CreateMedication(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m Medication
	_ = json.Unmarshal(rec.Body.Bytes(), &m)
	if !m.Active || !m.RequiresPrescription {
		t.Errorf("expected active prescription-only defaults, got %+v", m)
	}
}

func TestHandler_CreateMedication_InvalidForm(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"X","pharmaceutical_form":"powder"}`), httptest.NewRecorder())
	expectHTTPStatus(t, h.CreateMedication(c), http.StatusBadRequest)
}

func TestHandler_GetMedication_BadID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPStatus(t, h.GetMedication(c), http.StatusBadRequest)
}

func TestHandler_AdjustStock(t *testing.T) {
	h, e := newTestHandler()
	m := &Medication{Name: "Insulin", QtyAvailable: 2}
	_ = h.svc.CreateMedication(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"delta":3}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.AdjustStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"qty_available":5`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(jsonRequest(http.MethodPost, `{"delta":-10}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	expectHTTPStatus(t, h.AdjustStock(c), http.StatusBadRequest)
}
