package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/assistant"
	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/metrics"
	"github.com/plantpulse/plant-server/internal/poller"
	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/telemetry"
)

const userIDHeader = "X-User-ID"

// ControllerFactory builds a polling controller for a user when their first
// request arrives.
type ControllerFactory func(userID string) *poller.Controller

// ProfileStore is the profile persistence surface the handlers need.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Update(ctx context.Context, userID string, patch profile.Patch) error
	ClearPlantingDate(ctx context.Context, userID string) error
	AddCredential(ctx context.Context, userID, credential string) error
	RemoveCredential(ctx context.Context, userID string, index int) error
	SelectCredential(ctx context.Context, userID string, index int) error
}

// HistoryReader serves stored readings: hourly rollups for the history
// endpoint and the last raw reading as a snapshot fallback.
type HistoryReader interface {
	GetHourlyReadings(userID string, start, end time.Time) ([]*database.HourlyReading, error)
	GetLatestReading(userID string) (*database.PlantReading, error)
}

// ChatProvider answers chat questions with sensor context.
type ChatProvider interface {
	Chat(ctx context.Context, history []assistant.Message, question string, snapshot *telemetry.Snapshot, prof *profile.Profile) (string, error)
}

// Server is the HTTP front end: profile management, credential management,
// live status, and the chat assistant.
type Server struct {
	registry  *poller.Registry
	profiles  ProfileStore
	assistant ChatProvider
	history   HistoryReader
	factory   ControllerFactory
	logger    zerolog.Logger
	srv       *http.Server
}

func NewServer(port int, registry *poller.Registry, profiles ProfileStore, chat ChatProvider, history HistoryReader, factory ControllerFactory, logger zerolog.Logger) *Server {
	s := &Server{
		registry:  registry,
		profiles:  profiles,
		assistant: chat,
		history:   history,
		factory:   factory,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireUser)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handlePatchProfile).Methods(http.MethodPatch)
	api.HandleFunc("/credentials", s.handleAddCredential).Methods(http.MethodPost)
	api.HandleFunc("/credentials/select", s.handleSelectCredential).Methods(http.MethodPost)
	api.HandleFunc("/credentials/{index}", s.handleRemoveCredential).Methods(http.MethodDelete)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // chat replies can be slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requireUser pulls the caller identity from the X-User-ID header. There is
// no authentication layer here; identity is attested upstream.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userIDHeader) == "" {
			writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
