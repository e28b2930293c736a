package adapters

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBackendTransport covers network failures and non-success HTTP statuses.
	ErrBackendTransport = errors.New("backend transport error")
	// ErrMalformedResponse means the backend answered but the body could not be interpreted.
	ErrMalformedResponse = errors.New("malformed backend response")
)

type Kind string

const (
	KindTransport Kind = "transport"
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindMalformed Kind = "malformed"
)

// BackendError is returned by every adapter on failure.
type BackendError struct {
	Backend    string
	Kind       Kind
	StatusCode int
	Cause      error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s: %s", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Is maps the error kind onto the package sentinels. Auth and rate-limit
// failures are transport failures from the caller's point of view.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackendTransport:
		return e.Kind != KindMalformed
	case ErrMalformedResponse:
		return e.Kind == KindMalformed
	}
	return false
}

func transportError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindTransport, Cause: err}
}

func malformedError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindMalformed, Cause: err}
}

// statusError classifies a non-2xx response. The body is kept as the cause, truncated.
func statusError(backend string, status int, body []byte) *BackendError {
	kind := KindTransport
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &BackendError{
		Backend:    backend,
		Kind:       kind,
		StatusCode: status,
		Cause:      fmt.Errorf("%s returned status %d: %s", backend, status, string(body)),
	}
}
