package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bcsanches/DCCLite-sub001/internal/broker"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Values of Error.Code.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeTimeout      = "timeout"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) // client may be gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBrokerError maps an error returned by a broker command to a
// response.
func writeBrokerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrDecoderNotFound),
		errors.Is(err, device.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, device.ErrNotOnline),
		errors.Is(err, task.ErrInvalidState):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, decoder.ErrNotOutput),
		errors.Is(err, decoder.ErrInvalidState),
		errors.Is(err, task.ErrInvalidData),
		errors.Is(err, task.ErrUnknownKind),
		errors.Is(err, device.ErrInvalidDevice):
		writeBadRequest(w, err.Error())
	case errors.Is(err, broker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "broker did not answer in time")
	default:
		writeInternalError(w, err.Error())
	}
}
