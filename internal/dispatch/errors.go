package dispatch

import (
	"errors"
	"fmt"

	"github.com/af-corp/relay/internal/router"
	"github.com/af-corp/relay/internal/router/adapters"
)

var (
	// ErrBackendUnavailable means the requested backend is not registered or has no credentials.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrComparisonFailed means no target of a comparison batch succeeded.
	ErrComparisonFailed = errors.New("comparison failed: no backend succeeded")

	ErrNoBackendsAvailable = router.ErrNoBackendsAvailable
	ErrBackendTransport    = adapters.ErrBackendTransport
	ErrMalformedResponse   = adapters.ErrMalformedResponse
)

// DispatchError identifies the backend and model a failed dispatch was sent to.
type DispatchError struct {
	Backend string
	Model   string
	Cause   error
}

func (e *DispatchError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("dispatch to %s: %v", e.Backend, e.Cause)
	}
	return fmt.Sprintf("dispatch to %s/%s: %v", e.Backend, e.Model, e.Cause)
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}
