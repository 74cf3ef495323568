package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uptrace/bunrouter"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/lifecycle"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

type (
	httpError struct {
		status int
		msg    string
	}

	errorResponse struct {
		Error     string `json:"error"`
		RequestID string `json:"requestId,omitempty"`
	}
)

func (e *httpError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

func notFound(msg string) error {
	return &httpError{status: http.StatusNotFound, msg: msg}
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var (
		httpErr  *httpError
		readErr  *provenance.LedgerReadError
		writeErr *provenance.LedgerWriteError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.status
	case errors.Is(err, lifecycle.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, provenance.ErrCapabilityUnavailable):
		return http.StatusNotImplemented
	case errors.As(err, &readErr), errors.As(err, &writeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) errorHandler(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		err := next(w, req)
		if err == nil {
			return nil
		}

		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			a.logg.Error("api request failed", "path", req.URL.Path, "status", status, "error", err)
		} else {
			a.logg.Debug("api request rejected", "path", req.URL.Path, "status", status, "error", err)
		}

		return writeJSON(w, status, errorResponse{
			Error:     err.Error(),
			RequestID: w.Header().Get(requestIDHeader),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
