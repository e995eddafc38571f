package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"tablebook/internal/calendar"
	"tablebook/internal/engine"
	"tablebook/internal/export"
	"tablebook/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateBookingRequest is the body of POST /api/v1/bookings.
type CreateBookingRequest struct {
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	PartySize       int            `json:"party_size"`
	DurationMinutes int            `json:"duration_minutes,omitempty"`
	TableIDs        []string       `json:"table_ids,omitempty"`
	Customer        model.Customer `json:"customer"`
	Source          string         `json:"source,omitempty"`
	SpecialRequests string         `json:"special_requests,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Confirm         bool           `json:"confirm,omitempty"`
}

// StatusRequest is the body of POST /api/v1/bookings/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// MoveBookingRequest is the body of POST /api/v1/bookings/{id}/move.
type MoveBookingRequest struct {
	Date            string   `json:"date,omitempty"`
	Time            string   `json:"time,omitempty"`
	PartySize       int      `json:"party_size,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	TableIDs        []string `json:"table_ids,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

// handleCreateBooking assigns tables and commits a booking.
// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	staff := isStaff(r)
	if !staff && len(req.TableIDs) > 0 {
		writeError(w, http.StatusForbidden, "only staff may pick tables")
		return
	}

	b, err := s.engine.AssignAndBook(r.Context(), engine.BookRequest{
		Request: engine.Request{
			Date:            req.Date,
			Time:            req.Time,
			PartySize:       req.PartySize,
			DurationMinutes: req.DurationMinutes,
			IsStaff:         staff,
		},
		TableIDs:        req.TableIDs,
		Customer:        req.Customer,
		Source:          model.BookingSource(req.Source),
		SpecialRequests: req.SpecialRequests,
		Notes:           req.Notes,
		CreatedBy:       r.Header.Get(UserHeader),
		Confirm:         req.Confirm,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleListBookings returns the bookings of a date.
// GET /api/v1/bookings?date=YYYY-MM-DD
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	bookings, err := s.engine.ListBookings(r.Context(), date)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "bookings": bookings})
}

// GET /api/v1/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleChangeStatus moves a booking through its lifecycle. Guests may only cancel.
// POST /api/v1/bookings/{id}/status
func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status := model.BookingStatus(req.Status)
	if !isStaff(r) && status != model.StatusCancelled {
		writeError(w, http.StatusForbidden, "staff role required")
		return
	}

	b, err := s.engine.ChangeBookingStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/bookings/{id}/move
func (s *HTTPServer) handleMoveBooking(w http.ResponseWriter, r *http.Request) {
	var req MoveBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.engine.MoveBooking(r.Context(), r.PathValue("id"), engine.MoveRequest{
		Date:            req.Date,
		Time:            req.Time,
		PartySize:       req.PartySize,
		DurationMinutes: req.DurationMinutes,
		TableIDs:        req.TableIDs,
		Notes:           req.Notes,
		IsStaff:         true,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleExport streams an Excel report of bookings.
// GET /api/v1/bookings/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	start, errFrom := time.Parse(calendar.DateLayout, from)
	end, errTo := time.Parse(calendar.DateLayout, to)
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	var buf bytes.Buffer
	if err := s.engine.ExportBookings(r.Context(), from, to, &buf); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(start, end)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
