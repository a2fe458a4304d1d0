// Package http provides the HTTP adapter exposing run operations.
package http

import (
	"net/http"

	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/service"
)

// Handlers bundles the services the HTTP layer dispatches to.
type Handlers struct {
	Runs *service.RunService
}

// CreateRun handles POST /runs.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[run.CreateRequest](w, r)
	if !ok {
		return
	}

	created, err := h.Runs.Create(r.Context(), req)
	if err != nil {
		// A publish failure after the store write still returns the error;
		// the run exists and the outbox replayer recovers the event.
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

// UpdateRun handles PUT /runs/{id}.
func (h *Handlers) UpdateRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[run.UpdateRequest](w, r)
	if !ok {
		return
	}

	updated, err := h.Runs.Update(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// StartRun handles POST /runs/{id}/start.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	started, err := h.Runs.Start(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, started)
}

// CancelRun handles POST /runs/{id}/cancel.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Runs.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, cancelled)
}

// CompleteRun handles POST /runs/{id}/complete.
func (h *Handlers) CompleteRun(w http.ResponseWriter, r *http.Request) {
	completed, err := h.Runs.Complete(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, completed)
}

// GetRun handles GET /runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	found, err := h.Runs.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeData(w, http.StatusOK, found)
}

// ListRuns handles GET /runs?status&type&driverId.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := run.Filter{
		Status:   run.Status(q.Get("status")),
		Type:     run.Type(q.Get("type")),
		DriverID: q.Get("driverId"),
	}

	runs, err := h.Runs.List(r.Context(), f)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if runs == nil {
		runs = []run.Run{}
	}
	writeData(w, http.StatusOK, runs)
}
