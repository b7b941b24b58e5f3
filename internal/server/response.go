package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/engine"
	"github.com/lalomorales22/roundtable/logging"
	"github.com/lalomorales22/roundtable/runner"
)

// Response is the envelope of every API response.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in ErrorInfo.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeTimeout        = "timeout"
	CodeInternal       = "internal_error"
)

// WriteJSON writes data as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps err to a status and error code and writes the envelope.
// Server-side failures are logged.
func WriteError(w http.ResponseWriter, err error, logger logging.Logger) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logging.OrNoOp(logger).Error("API error", "status", status, "error", err.Error())
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: err.Error()},
		Timestamp: time.Now(),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, engine.ErrInvalidRound),
		errors.Is(err, core.ErrInvalidMessage),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, runner.ErrCascadeActive),
		errors.Is(err, core.ErrWriteConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
