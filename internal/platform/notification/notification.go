// Package notification renders and delivers the patient-facing emails sent by
// the appointment and prescription workflows. Delivery is best effort: callers
// log a returned error and carry on.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/appointments/internal/platform/apperr"
	"github.com/hospital/appointments/internal/platform/auth"
	"github.com/hospital/appointments/internal/platform/telemetry"
)

// Kind names the event a message is sent for.
type Kind string

const (
	KindAppointmentConfirmation Kind = "appointment-confirmation"
	KindAppointmentReminder24h  Kind = "appointment-reminder-24h"
	KindAppointmentReminder2h   Kind = "appointment-reminder-2h"
	KindPrescriptionIssued      Kind = "prescription-issued"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

var ErrNoRecipient = errors.New("recipient has no email address")

// Message is a request to notify the owner of a record.
type Message struct {
	Kind       Kind              `json:"kind"`
	To         string            `json:"to"`
	ToName     string            `json:"to_name,omitempty"`
	RecordType string            `json:"record_type"`
	RecordID   string            `json:"record_id"`
	Data       map[string]string `json:"data,omitempty"`
}

// Notification is the delivery record kept for a sent or failed message.
type Notification struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	RecordType string     `json:"record_type"`
	RecordID   string     `json:"record_id"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// EmailSender delivers a rendered email. Implementations: SendGrid, SES, log.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	Kind    Kind
	Subject string
	Body    string
}

// TemplateEngine resolves templates by kind.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Kind]*Template
}

func NewTemplateEngine() *TemplateEngine {
	te := &TemplateEngine{templates: make(map[Kind]*Template)}
	for _, t := range defaultTemplates {
		tpl := t
		te.templates[tpl.Kind] = &tpl
	}
	return te
}

var defaultTemplates = []Template{
	{
		Kind:    KindAppointmentConfirmation,
		Subject: "Appointment {{number}} confirmed",
		Body: "Dear {{patient}},\n\nYour appointment with {{doctor}} ({{specialty}}) on {{date}} has been confirmed.\n" +
			"Room: {{room}}\nDuration: {{duration}}\n\nYou can review it at {{link}}",
	},
	{
		Kind:    KindAppointmentReminder24h,
		Subject: "Reminder: appointment {{number}} tomorrow",
		Body: "Dear {{patient}},\n\nThis is a reminder of your appointment with {{doctor}} tomorrow, {{date}}.\n" +
			"Room: {{room}}\n\nIf you cannot attend, please cancel at {{link}}",
	},
	{
		Kind:    KindAppointmentReminder2h,
		Subject: "Reminder: appointment {{number}} in 2 hours",
		Body:    "Dear {{patient}},\n\nYour appointment with {{doctor}} starts at {{date}}.\nRoom: {{room}}",
	},
	{
		Kind:    KindPrescriptionIssued,
		Subject: "Prescription {{number}} issued",
		Body: "Dear {{patient}},\n\n{{doctor}} has issued prescription {{number}} on {{issue_date}}.\n" +
			"It is valid until {{expiry_date}}.\n\n{{lines}}\n\nView it at {{link}}",
	},
}

// Register adds or replaces the template for a kind.
func (te *TemplateEngine) Register(t *Template) error {
	if t == nil || t.Kind == "" {
		return fmt.Errorf("template kind is required")
	}
	if t.Subject == "" {
		return fmt.Errorf("template subject is required")
	}
	te.mu.Lock()
	te.templates[t.Kind] = t
	te.mu.Unlock()
	return nil
}

// Render substitutes data into the template for kind. Unknown placeholders are
// left as-is.
func (te *TemplateEngine) Render(kind Kind, data map[string]string) (subject, body string, err error) {
	te.mu.RLock()
	t, ok := te.templates[kind]
	te.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("no template for %q", kind)
	}
	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// maxHistory bounds the in-memory delivery log.
const maxHistory = 1000

// Manager renders messages, sends them and keeps a bounded delivery log.
type Manager struct {
	mu        sync.RWMutex
	sender    EmailSender
	templates *TemplateEngine
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	history   map[string]*Notification
	order     []string
	now       func() time.Time
}

func NewManager(sender EmailSender, templates *TemplateEngine, metrics *telemetry.Metrics, logger zerolog.Logger) *Manager {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Manager{
		sender:    sender,
		templates: templates,
		metrics:   metrics,
		logger:    logger.With().Str("component", "notification").Logger(),
		history:   make(map[string]*Notification),
		now:       time.Now,
	}
}

// Notify renders and sends msg. The returned error is always of kind
// notification.
func (m *Manager) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		err := apperr.Notification(ErrNoRecipient, "%s for %s %s", msg.Kind, msg.RecordType, msg.RecordID)
		m.metrics.ObserveNotification(string(msg.Kind), err)
		return err
	}
	subject, body, err := m.templates.Render(msg.Kind, msg.Data)
	if err != nil {
		m.metrics.ObserveNotification(string(msg.Kind), err)
		return apperr.Notification(err, "render %s", msg.Kind)
	}

	n := &Notification{
		ID:         uuid.New().String(),
		Kind:       msg.Kind,
		Recipient:  msg.To,
		Subject:    subject,
		Body:       body,
		RecordType: msg.RecordType,
		RecordID:   msg.RecordID,
		CreatedAt:  m.now().UTC(),
	}
	err = m.deliver(ctx, n)
	m.store(n)
	if err != nil {
		return apperr.Notification(err, "send %s to %s", msg.Kind, msg.To)
	}
	return nil
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	err := m.sender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	m.metrics.ObserveNotification(string(n.Kind), err)

	m.mu.Lock()
	defer m.mu.Unlock()
	n.Attempts++
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		m.logger.Warn().Err(err).
			Str("kind", string(n.Kind)).
			Str("record_type", n.RecordType).
			Str("record_id", n.RecordID).
			Msg("notification delivery failed")
		return err
	}
	sentAt := m.now().UTC()
	n.Status = StatusSent
	n.SentAt = &sentAt
	n.Error = ""
	m.logger.Debug().Str("kind", string(n.Kind)).Str("record_id", n.RecordID).Msg("notification sent")
	return nil
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[n.ID] = n
	m.order = append(m.order, n.ID)
	if len(m.order) > maxHistory {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.history, oldest)
	}
}

func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.history[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("notification %q not found", id)
	}
	return n, nil
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	RecordType string
	RecordID   string
	Status     string
}

// List returns matching notifications, newest first.
func (m *Manager) List(_ context.Context, f ListFilter, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.history[m.order[i]]
		if f.RecordType != "" && n.RecordType != f.RecordType {
			continue
		}
		if f.RecordID != "" && n.RecordID != f.RecordID {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) (*Notification, error) {
	n, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	status := n.Status
	m.mu.RUnlock()
	if status != StatusFailed {
		return nil, apperr.Transition("notification %q is %s; only failed notifications can be retried", id, status)
	}
	if err := m.deliver(ctx, n); err != nil {
		return n, apperr.Notification(err, "retry %s", n.Kind)
	}
	return n, nil
}

// Stats counts the delivery log by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := map[string]int{StatusSent: 0, StatusFailed: 0}
	for _, n := range m.history {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the delivery log to administrators.
type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin/notifications", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.POST("/:id/retry", h.Retry)
}

func (h *Handler) List(c echo.Context) error {
	f := ListFilter{
		RecordType: c.QueryParam("record_type"),
		RecordID:   c.QueryParam("record_id"),
		Status:     c.QueryParam("status"),
	}
	items := h.manager.List(c.Request().Context(), f, 100)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	n, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) Retry(c echo.Context) error {
	n, err := h.manager.Retry(c.Request().Context(), c.Param("id"))
	if err != nil && n == nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
