package client

import (
	"fmt"
	"net/http"

	"github.com/tinyhis/regops/internal/api"
)

// Kind discriminates how a response was classified.
type Kind int

const (
	// KindSuccess is HTTP 200 with envelope code 200.
	KindSuccess Kind = iota
	// KindAppError is HTTP 200 with any other envelope code.
	KindAppError
	// KindHTTPError is any non-200 HTTP status. The envelope is kept when
	// the body parsed.
	KindHTTPError
	// KindNotJSON is HTTP 200 with a body that is not an envelope.
	KindNotJSON
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAppError:
		return "app-error"
	case KindHTTPError:
		return "http-error"
	case KindNotJSON:
		return "not-json"
	default:
		return fmt.Sprintf("kind-%d", int(k))
	}
}

// Result is a decoded backend response. Data is only populated for
// KindSuccess.
type Result[T any] struct {
	Kind       Kind
	StatusCode int
	Envelope   *api.Envelope
	Data       T
	Body       []byte

	// DecodeErr is set when a successful envelope carried data that did
	// not fit T. Kind stays KindSuccess and Data is left zero.
	DecodeErr error
}

func (r *Result[T]) OK() bool {
	return r.Kind == KindSuccess
}

// Code returns the envelope code, or 0 when there is no envelope.
func (r *Result[T]) Code() int {
	if r.Envelope == nil {
		return 0
	}
	return r.Envelope.Code
}

// Message returns the envelope message, or "" when there is no envelope.
func (r *Result[T]) Message() string {
	if r.Envelope == nil {
		return ""
	}
	return r.Envelope.Message
}

// Snippet returns the first bytes of the raw body for display.
func (r *Result[T]) Snippet() string {
	return snippet(r.Body)
}

// Forbidden reports an HTTP-level authorization refusal.
func (r *Result[T]) Forbidden() bool {
	return r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden
}

// Err returns nil for a success and an *APIError otherwise.
func (r *Result[T]) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{
		Kind:       r.Kind,
		StatusCode: r.StatusCode,
		Code:       r.Code(),
		Message:    r.Message(),
		Body:       r.Snippet(),
	}
}

// APIError describes a response that was not an application success.
type APIError struct {
	Kind       Kind
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTPError:
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.Body)
	case KindNotJSON:
		return fmt.Sprintf("non-JSON response: %s", e.Body)
	default:
		if e.Message == "" {
			return fmt.Sprintf("app code %d", e.Code)
		}
		return e.Message
	}
}
