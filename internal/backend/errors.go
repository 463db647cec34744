package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/haasonsaas/relay/pkg/models"
)

// Error is the typed failure every adapter returns. Message is safe to
// surface to callers; Detail may carry raw transport context and is only
// for structured logs.
type Error struct {
	Kind    models.ErrorKind
	Backend string
	Model   string
	Status  int
	Message string
	Detail  string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("[%s] %s model=%s status=%d: %s", e.Kind, e.Backend, e.Model, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s model=%s: %s", e.Kind, e.Backend, e.Model, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an adapter error, classifying the cause when no explicit
// kind fits yet.
func NewError(backendName, model string, cause error) *Error {
	e := &Error{
		Kind:    models.KindBackend,
		Backend: backendName,
		Model:   model,
		Cause:   cause,
	}
	if cause != nil {
		e.Message = scrub(cause)
		if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
			e.Kind = models.KindTimeout
			e.Message = "request cancelled or deadline exceeded"
		}
	}
	return e
}

// WithStatus records the HTTP status and reclassifies the kind.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	switch {
	case status == http.StatusNotFound:
		e.Kind = models.KindModelUnavailable
		e.Message = "model not found on backend"
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		e.Kind = models.KindTimeout
		e.Message = "backend timed out"
	case status >= 400:
		e.Kind = models.KindBackend
		e.Message = fmt.Sprintf("backend returned status %d", status)
	}
	return e
}

// WithDetail attaches log-only transport detail.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// scrub keeps caller-visible messages free of raw transport detail.
// Context errors and our own typed errors pass through; anything else is
// reduced to a generic transport message (the cause stays on the error
// chain for logs).
func scrub(cause error) string {
	var be *Error
	if errors.As(cause, &be) {
		return be.Message
	}
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		return "request cancelled or deadline exceeded"
	}
	return "backend transport failure"
}

// KindOf extracts the error kind from an adapter error chain, defaulting
// to Backend for untyped errors.
func KindOf(err error) models.ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.KindTimeout
	}
	return models.KindBackend
}

// MessageOf extracts the caller-safe message from an adapter error chain.
func MessageOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	if err == nil {
		return ""
	}
	return scrub(err)
}
