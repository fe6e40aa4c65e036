// Package http exposes the service's operational endpoints and a small
// read-only forecast API for downstream consumers that want to poll
// instead of subscribing to the sink topic.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ForecastGetter loads persisted forecasts for the read API.
type ForecastGetter interface {
	GetForecast(ctx context.Context, id string) (domain.SwellForecast, error)
	Predictions(ctx context.Context, forecastID string) ([]domain.Prediction, error)
}

// Server exposes health, readiness, metrics, and forecast read endpoints.
type Server struct {
	httpServer *http.Server
	forecasts  ForecastGetter
	logger     *slog.Logger
}

// NewServer creates the HTTP server. forecasts may be nil, in which case
// the /forecasts routes respond 404.
func NewServer(addr string, ready ReadinessChecker, forecasts ForecastGetter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		forecasts: forecasts,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /forecasts/{id}", s.handleGetForecast)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "swell-fusion"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// forecastResponse bundles a forecast with its shore predictions so a
// single poll returns everything the renderer needs.
type forecastResponse struct {
	Forecast    domain.SwellForecast `json:"forecast"`
	Predictions []domain.Prediction  `json:"predictions"`
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.forecasts == nil || id == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	f, err := s.forecasts.GetForecast(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		s.logger.Error("forecast lookup failed", "forecast_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	preds, err := s.forecasts.Predictions(r.Context(), id)
	if err != nil {
		s.logger.Error("prediction lookup failed", "forecast_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, forecastResponse{Forecast: f, Predictions: preds})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
