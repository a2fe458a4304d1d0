package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/logger"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response envelope
// ---------------------------------------------------------------------------

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeDomainError maps domain errors to the envelope and status codes:
// 400 conflict/validation, 404 not found, 409 invalid transition, 502
// routing failure, 500 otherwise. Client errors carry the actionable
// message; infrastructure errors return a generic message plus the request
// correlation id and never leak provider error text.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrScheduleConflict):
		writeError(w, http.StatusBadRequest, "SCHEDULE_CONFLICT", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrRouteOptimization):
		writeInfraError(ctx, w, http.StatusBadGateway, "ROUTE_OPTIMIZATION_FAILED", err)
	case errors.Is(err, domain.ErrTrafficLookup):
		writeInfraError(ctx, w, http.StatusBadGateway, "TRAFFIC_LOOKUP_FAILED", err)
	case errors.Is(err, domain.ErrNotConnected):
		writeInfraError(ctx, w, http.StatusInternalServerError, "NOT_CONNECTED", err)
	default:
		writeInfraError(ctx, w, http.StatusInternalServerError, "INTERNAL", err)
	}
}

// writeInfraError logs the actual error server-side and returns a generic
// message referencing the correlation id.
func writeInfraError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	id := logger.RequestID(ctx)
	slog.Error("request failed", "error", err, "request_id", id)
	writeError(w, status, code, "internal failure, correlation id "+id)
}
