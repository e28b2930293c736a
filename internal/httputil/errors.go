package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/af-corp/relay/internal/dispatch"
)

// APIError matches the OpenAI error response format.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_signature", message)
}

func WriteQuotaError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "quota_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

// WriteDispatchError maps an engine error onto its HTTP status and code.
func WriteDispatchError(w http.ResponseWriter, requestID string, err error) {
	// A failed batch joins every target's cause, so it must be matched first.
	switch {
	case errors.Is(err, dispatch.ErrComparisonFailed):
		WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "comparison_failed", err.Error())
	case errors.Is(err, dispatch.ErrNoBackendsAvailable):
		WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "no_backends_available", err.Error())
	case errors.Is(err, dispatch.ErrBackendUnavailable):
		WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "backend_unavailable", err.Error())
	case errors.Is(err, dispatch.ErrBackendTransport), errors.Is(err, dispatch.ErrMalformedResponse):
		WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "backend_error", err.Error())
	default:
		WriteInternalError(w, requestID, err.Error())
	}
}
