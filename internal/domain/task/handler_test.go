package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospital/appointments/internal/platform/auth"
)

func TestHandler_ListMine(t *testing.T) {
	svc, _ := newTestService()
	_ = svc.CreateTask(context.Background(), &Task{UserID: "u-1", Note: "mine"})
	_ = svc.CreateTask(context.Background(), &Task{UserID: "u-2", Note: "theirs"})
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(userCtx("u-1", auth.RolePhysician))
	rec := httptest.NewRecorder()
	if err := h.ListMine(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"note":"mine"`) || strings.Contains(body, "theirs") {
		t.Errorf("unexpected body %s", body)
	}
}

func TestHandler_ListMine_NoUser(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	err := h.ListMine(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_MarkDone(t *testing.T) {
	svc, _ := newTestService()
	task := &Task{UserID: "u-1", Note: "Call back"}
	_ = svc.CreateTask(context.Background(), task)
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(userCtx("u-1", auth.RoleNurse))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(task.ID.String())
	if err := h.MarkDone(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"done"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(task.ID.String())
	he, ok := h.MarkDone(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 on repeat, got %v", he)
	}
}
