package api

import (
	"net/http"

	"tablebook/internal/engine"
	"tablebook/internal/model"
)

// DeactivateResponse lists bookings still holding a retired table.
type DeactivateResponse struct {
	TableID          string          `json:"table_id"`
	AffectedBookings []model.Booking `json:"affected_bookings"`
}

// GET /api/v1/tables
func (s *HTTPServer) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.engine.ListTables(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// POST /api/v1/tables
func (s *HTTPServer) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req engine.NewTable
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := s.engine.CreateTable(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleDeactivateTable retires a table; bookings already on it are reported back.
// POST /api/v1/tables/{id}/deactivate
func (s *HTTPServer) handleDeactivateTable(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	affected, err := s.engine.DeactivateTable(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeactivateResponse{TableID: id, AffectedBookings: affected})
}
