// Package apperr defines the failure kinds shared by the domain services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindStateTransition Kind = "state_transition"
	KindConflict        Kind = "conflict"
	KindNotification    Kind = "notification"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Error is a classified failure carrying a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports input that breaks a field or cross-field rule.
func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

// Transition reports an action attempted from a state that does not allow it.
func Transition(format string, args ...interface{}) error {
	return newf(KindStateTransition, format, args...)
}

// Conflict reports a clash with existing data, such as a double booking.
func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// NotFound reports a missing record.
func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// Notification wraps a failed delivery to an external collaborator.
func Notification(err error, format string, args ...interface{}) error {
	e := newf(KindNotification, format, args...)
	e.Err = err
	if err != nil {
		e.Message = e.Message + ": " + err.Error()
	}
	return e
}

// Wrap attaches a kind to an existing error, keeping it reachable through
// errors.Is.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode maps a failure kind onto an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindStateTransition, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindNotification:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo.HTTPError with the mapped status.
// Internal errors do not leak their message.
func HTTPError(err error) *echo.HTTPError {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error())
}
