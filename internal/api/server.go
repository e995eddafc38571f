// Package api exposes the booking engine over HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tablebook/internal/database"
	"tablebook/internal/engine"
	"tablebook/internal/metrics"
	"tablebook/internal/model"
)

// Engine is the set of booking operations served over HTTP.
type Engine interface {
	CheckAvailability(ctx context.Context, req engine.Request) (*engine.Availability, error)
	AssignAndBook(ctx context.Context, req engine.BookRequest) (*model.Booking, error)
	GetTableAvailability(ctx context.Context, date string) ([]engine.TableAvailability, error)
	RebuildAvailabilityCache(ctx context.Context, date string) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookings(ctx context.Context, date string) ([]model.Booking, error)
	ChangeBookingStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error)
	MoveBooking(ctx context.Context, id string, req engine.MoveRequest) (*model.Booking, error)
	ExportBookings(ctx context.Context, from, to string, w io.Writer) error
	ListTables(ctx context.Context) ([]model.Table, error)
	CreateTable(ctx context.Context, in engine.NewTable) (*model.Table, error)
	DeactivateTable(ctx context.Context, id string) ([]model.Booking, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	APIKey             string
	RateLimitPerSecond float64
	RateLimitBurst     int
	CORSOrigins        []string
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	engine  Engine
	cfg     Config
	limiter *RateLimiter
	server  *http.Server
	logger  zerolog.Logger
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(eng Engine, cfg Config, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		engine:  eng,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	s.handle(mux, "POST /api/v1/availability/check", s.handleCheckAvailability)
	s.handle(mux, "GET /api/v1/availability/tables", s.handleTableAvailability)
	s.handle(mux, "POST /api/v1/availability/rebuild", s.staffOnly(s.handleRebuild))
	s.handle(mux, "POST /api/v1/bookings", s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings", s.staffOnly(s.handleListBookings))
	s.handle(mux, "GET /api/v1/bookings/export", s.staffOnly(s.handleExport))
	s.handle(mux, "GET /api/v1/bookings/{id}", s.handleGetBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/status", s.handleChangeStatus)
	s.handle(mux, "POST /api/v1/bookings/{id}/move", s.staffOnly(s.handleMoveBooking))
	s.handle(mux, "GET /api/v1/tables", s.handleListTables)
	s.handle(mux, "POST /api/v1/tables", s.staffOnly(s.handleCreateTable))
	s.handle(mux, "POST /api/v1/tables/{id}/deactivate", s.staffOnly(s.handleDeactivateTable))

	var handler http.Handler = mux
	handler = s.requireAPIKey(handler)
	handler = otelhttp.NewHandler(handler, "tablebook-api")
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Api-Key", "X-Role", "X-User-Id", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader, "Content-Disposition"},
			MaxAge:         600,
		}).Handler(handler)
	}
	handler = s.limiter.Middleware(handler)
	handler = withAccessLog(s.logger, handler)
	handler = withRequestID(handler)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.cfg.Address).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handle registers h under pattern and counts requests by route.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	method, route, _ := strings.Cut(pattern, " ")
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		h(sw, r)
		metrics.IncHTTPRequest(method, route, sw.code())
	}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps engine failures to status codes. Faults are logged and
// answered with a generic message.
func (s *HTTPServer) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var de *engine.DomainError
	switch {
	case errors.As(err, &de):
		writeJSON(w, statusFor(err), errorResponse{Error: de.Reason, Kind: engine.KindName(err)})
	case errors.Is(err, database.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "booking was modified concurrently, please retry", Kind: "concurrent_modification"})
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTableConflict),
		errors.Is(err, engine.ErrNoTablesAvailable),
		errors.Is(err, engine.ErrCapacityExceeded),
		errors.Is(err, engine.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrVenueClosed),
		errors.Is(err, engine.ErrPartySizeRejected),
		errors.Is(err, engine.ErrOutsideBookingWindow):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
