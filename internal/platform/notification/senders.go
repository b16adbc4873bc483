package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hospital/appointments/pkg/circuitbreaker"
)

// Sender identifies the From header of outgoing mail.
type Sender struct {
	Email string
	Name  string
}

func (s Sender) withDefaults() Sender {
	if s.Name == "" {
		s.Name = "Hospital Appointments"
	}
	return s
}

// ---------------------------------------------------------------------------
// SendGrid
// ---------------------------------------------------------------------------

type SendGridSender struct {
	client *sendgrid.Client
	from   Sender
}

func NewSendGridSender(apiKey string, from Sender) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   from.withDefaults(),
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Email),
		subject,
		mail.NewEmail("", to),
		body, "",
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// AWS SES
// ---------------------------------------------------------------------------

// SESClient is the subset of *sesv2.Client used here.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client SESClient
	from   Sender
}

func NewSESSender(client SESClient, from Sender) *SESSender {
	return &SESSender{client: client, from: from.withDefaults()}
}

func (s *SESSender) SendEmail(ctx context.Context, to, subject, body string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.from.Name, s.from.Email)),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Log sender
// ---------------------------------------------------------------------------

// LogSender writes emails to the log instead of delivering them. Used in
// development and when no provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("email not delivered: log sender")
	return nil
}

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

// GuardedSender fails fast while the wrapped provider keeps failing.
type GuardedSender struct {
	next    EmailSender
	breaker *circuitbreaker.Breaker
}

func NewGuardedSender(next EmailSender, breaker *circuitbreaker.Breaker) *GuardedSender {
	return &GuardedSender{next: next, breaker: breaker}
}

func (g *GuardedSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.SendEmail(ctx, to, subject, body)
	})
}

// ---------------------------------------------------------------------------
// Mock
// ---------------------------------------------------------------------------

// SentEmail records a call to MockEmailSender.
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records sends and optionally fails them.
type MockEmailSender struct {
	mu         sync.Mutex
	ShouldFail bool
	FailError  error
	calls      []SentEmail
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SentEmail{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		if m.FailError != nil {
			return m.FailError
		}
		return fmt.Errorf("mock email send failure")
	}
	return nil
}

func (m *MockEmailSender) Calls() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.calls))
	copy(out, m.calls)
	return out
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*SESSender)(nil)
	_ EmailSender = (*LogSender)(nil)
	_ EmailSender = (*GuardedSender)(nil)
	_ EmailSender = (*MockEmailSender)(nil)
)
