package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"
	"fleethire/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	permReadBookings     = "read:bookings"
	permWriteBookings    = "write:bookings"
	permAssignBookings   = "assign:bookings"
	permReadAvailability = "read:availability"

	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Bookings    domain.BookingService
	Assignments domain.AssignmentService
	Catalog     domain.CatalogService
	Distance    domain.DistanceEstimator
	// Ready reports whether the dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the booking core over JSON/HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	server   *http.Server
	auth     *HTTPAuth
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		auth:     NewHTTPAuth(cfg),
		validate: newValidator(),
		logger:   &l,
	}

	api := http.NewServeMux()
	srv.handle(api, "POST /api/v1/quotes", permReadAvailability, srv.handleQuote)
	srv.handle(api, "POST /api/v1/availability/check", permReadAvailability, srv.handleAvailability)
	srv.handle(api, "GET /api/v1/categories", permReadAvailability, srv.handleCategories)
	srv.handle(api, "GET /api/v1/distance", permReadAvailability, srv.handleDistance)
	srv.handle(api, "GET /api/v1/customers/prefill", permReadBookings, srv.handleCustomerPrefill)

	srv.handle(api, "POST /api/v1/bookings", permWriteBookings, srv.handleCreateBooking)
	srv.handle(api, "GET /api/v1/bookings", permReadBookings, srv.handleListBookings)
	srv.handle(api, "GET /api/v1/bookings/{id}", permReadBookings, srv.handleGetBooking)
	srv.handle(api, "PATCH /api/v1/bookings/{id}", permWriteBookings, srv.handleUpdateBooking)
	srv.handle(api, "POST /api/v1/bookings/{id}/submit", permWriteBookings, srv.transitionHandler(svc.Bookings.Submit))
	srv.handle(api, "POST /api/v1/bookings/{id}/quote", permWriteBookings, srv.transitionHandler(svc.Bookings.SendQuotation))
	srv.handle(api, "POST /api/v1/bookings/{id}/confirm", permWriteBookings, srv.transitionHandler(svc.Bookings.Confirm))
	srv.handle(api, "POST /api/v1/bookings/{id}/start", permWriteBookings, srv.transitionHandler(svc.Bookings.Start))
	srv.handle(api, "POST /api/v1/bookings/{id}/complete", permWriteBookings, srv.transitionHandler(svc.Bookings.Complete))
	srv.handle(api, "POST /api/v1/bookings/{id}/clear-override", permWriteBookings, srv.transitionHandler(svc.Bookings.ClearOverride))
	srv.handle(api, "POST /api/v1/bookings/{id}/cancel", permWriteBookings, srv.handleCancel)
	srv.handle(api, "POST /api/v1/bookings/{id}/payments", permWriteBookings, srv.handlePayment)
	srv.handle(api, "POST /api/v1/bookings/{id}/assign", permAssignBookings, srv.handleAssign)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", srv.handleHealth)
	root.HandleFunc("GET /readyz", srv.handleReady)
	root.Handle("/api/", srv.auth.Wrap(api))

	port := cfg.HTTP.Port
	if port == 0 {
		port = 8080
	}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.requestID(srv.logRequests(root)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, for embedding and tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handle registers a route behind its permission and counts requests per pattern.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern, perm string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth.Require(perm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})))
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type ctxKey int

const requestIDKey ctxKey = iota

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		level := zerolog.InfoLevel
		if recorder.status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		s.logger.WithLevel(level).
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object and validates it.
func (s *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.ValidationError{Field: "body", Rule: domain.RuleInvalid, Msg: "invalid JSON body", Err: err}
	}
	return s.validateStruct(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
