package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/orchestrator"
	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeQueueFull          = "queue_full"
	ErrCodeDeviceOffline      = "device_offline"
	ErrCodeGatewayTimeout     = "gateway_timeout"
	ErrCodeDeviceUnreachable  = "device_unreachable"
	ErrCodeRemoteError        = "remote_error"
	ErrCodeBackendUnavailable = "backend_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError translates domain sentinel errors into HTTP responses.
//
// The gateway taxonomy maps onto proxy semantics: an unknown device is
// 404, a device the registry knows to be offline is 503 without any
// network call, a forwarded call that exceeded its deadline is 504, and
// a failure reported by (or reaching) the agent itself is 502.
func writeDomainError(w http.ResponseWriter, err error) {
	var remote *gateway.RemoteError

	switch {
	case errors.Is(err, device.ErrNotFound),
		errors.Is(err, gateway.ErrDeviceNotFound),
		errors.Is(err, orchestrator.ErrRunNotFound),
		errors.Is(err, orchestrator.ErrCampaignNotFound),
		errors.Is(err, inference.ErrJobNotFound),
		errors.Is(err, workflow.ErrNotFound):
		writeNotFound(w, err.Error())

	case errors.Is(err, gateway.ErrDeviceOffline):
		writeError(w, http.StatusServiceUnavailable, ErrCodeDeviceOffline, err.Error())

	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, inference.ErrJobTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeGatewayTimeout, err.Error())

	case errors.Is(err, gateway.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceUnreachable, err.Error())

	case errors.As(err, &remote):
		writeError(w, http.StatusBadGateway, ErrCodeRemoteError, remote.Error())

	case errors.Is(err, gateway.ErrCapabilityMissing),
		errors.Is(err, orchestrator.ErrRunNotStoppable):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, inference.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, ErrCodeQueueFull, err.Error())

	case errors.Is(err, inference.ErrBackendUnavailable), errors.Is(err, inference.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBackendUnavailable, err.Error())

	case errors.Is(err, orchestrator.ErrInvalidRequest),
		errors.Is(err, device.ErrInvalidInfo),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidAddress),
		errors.Is(err, device.ErrInvalidCapability):
		writeBadRequest(w, err.Error())

	default:
		writeInternalError(w, "internal server error")
	}
}
