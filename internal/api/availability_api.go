package api

import (
	"net/http"

	"tablebook/internal/engine"
)

// CheckRequest is the body of POST /api/v1/availability/check.
type CheckRequest struct {
	Date            string `json:"date"` // Format: YYYY-MM-DD
	Time            string `json:"time"` // Format: HH:MM
	PartySize       int    `json:"party_size"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// TableAvailabilityResponse is the response of GET /api/v1/availability/tables.
type TableAvailabilityResponse struct {
	Date   string                     `json:"date"`
	Tables []engine.TableAvailability `json:"tables"`
}

// handleCheckAvailability answers whether a party can be seated.
// POST /api/v1/availability/check
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	avail, err := s.engine.CheckAvailability(r.Context(), engine.Request{
		Date:            req.Date,
		Time:            req.Time,
		PartySize:       req.PartySize,
		DurationMinutes: req.DurationMinutes,
		IsStaff:         isStaff(r),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// handleTableAvailability returns per-table free and blocked intervals of a date.
// GET /api/v1/availability/tables?date=YYYY-MM-DD
func (s *HTTPServer) handleTableAvailability(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	tables, err := s.engine.GetTableAvailability(r.Context(), date)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TableAvailabilityResponse{Date: date, Tables: tables})
}

// handleRebuild recomputes the cached availability of a date.
// POST /api/v1/availability/rebuild?date=YYYY-MM-DD
func (s *HTTPServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if err := s.engine.RebuildAvailabilityCache(r.Context(), date); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"date": date, "status": "rebuilt"})
}
