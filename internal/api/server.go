package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/scheduler"
	"github.com/pwstlabs/linkedfate/internal/storage"
)

// Server is the HTTP API server
type Server struct {
	store  storage.Store
	sched  *scheduler.Scheduler
	server *http.Server
	log    *zap.Logger
}

// NewServer creates a new API server
func NewServer(store storage.Store, sched *scheduler.Scheduler, addr string, log *zap.Logger) *Server {
	s := &Server{
		store: store,
		sched: sched,
		log:   log,
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// Catalog and data endpoints
	mux.HandleFunc("/v1/indicators", s.handleIndicators)
	mux.HandleFunc("/v1/observations", s.handleObservations)
	mux.HandleFunc("/v1/anomalies", s.handleAnomalies)

	// Alert endpoints
	mux.HandleFunc("/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/v1/alerts/", s.handleAlertAction)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting API server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz. The server is ready once the risk
// evaluation job has produced a fresh result.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	states := s.sched.GetCache().GetAll()

	jobs := make(map[string]JobStatus, len(states))
	for name, state := range states {
		status := JobStatus{
			LastRun: state.UpdatedAt,
			Stale:   state.IsStale(now),
		}
		if state.Err != nil {
			status.Error = state.Err.Error()
		}
		jobs[name] = status
	}

	ready := true
	reasons := []string{}

	evalState, ok := states[scheduler.JobRiskEvaluation]
	switch {
	case !ok:
		ready = false
		reasons = append(reasons, "no risk evaluation completed yet")
	case evalState.IsStale(now):
		ready = false
		reasons = append(reasons, "last risk evaluation is stale")
	case evalState.Err != nil:
		ready = false
		reasons = append(reasons, "last risk evaluation failed")
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:   ready,
		Jobs:    jobs,
		Reasons: reasons,
	})
}

// handleIndicators handles GET /v1/indicators
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	indicators, err := s.store.Indicators(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list indicators: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, IndicatorsResponse{Indicators: indicators})
}

// handleObservations handles GET /v1/observations?indicator={code}&hours={n}&limit={n}
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	code := query.Get("indicator")
	if code == "" {
		respondError(w, http.StatusBadRequest, "indicator query parameter required")
		return
	}

	indicator, err := s.store.IndicatorByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("indicator not found: %s", code))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resolve indicator: %v", err))
		return
	}

	hours := queryInt(query.Get("hours"), 24)
	limit := queryInt(query.Get("limit"), 0)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	observations, err := s.store.ObservationsSince(r.Context(), indicator.ID, since, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query observations: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, ObservationsResponse{
		Indicator:    code,
		Observations: observations,
		Total:        len(observations),
	})
}

// handleAnomalies handles GET /v1/anomalies?hours={n}&min_severity={f}&indicator={code}&unacked={bool}&limit={n}
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	hours := queryInt(query.Get("hours"), 24)

	filter := storage.AnomalyFilter{
		Since:         time.Now().Add(-time.Duration(hours) * time.Hour),
		IndicatorCode: query.Get("indicator"),
		UnackedOnly:   query.Get("unacked") == "true",
		Limit:         queryInt(query.Get("limit"), 0),
	}

	if sevStr := query.Get("min_severity"); sevStr != "" {
		sev, err := strconv.ParseFloat(sevStr, 64)
		if err != nil || sev < 0 || sev > 1 {
			respondError(w, http.StatusBadRequest, "min_severity must be a number between 0 and 1")
			return
		}
		filter.MinSeverity = sev
	}

	anomalies, err := s.store.RecentAnomalies(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query anomalies: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, AnomaliesResponse{
		Anomalies: anomalies,
		Total:     len(anomalies),
	})
}

// handleAlerts handles GET /v1/alerts?active={bool}&type={t}&level={l}&limit={n}
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	filter := storage.AlertFilter{
		ActiveOnly: query.Get("active") != "false",
		AlertType:  query.Get("type"),
		Limit:      queryInt(query.Get("limit"), 0),
	}

	if levelStr := query.Get("level"); levelStr != "" {
		level, err := alert.ParseLevel(levelStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.AlertLevel = &level
	}

	alerts, err := s.store.Alerts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query alerts: %v", err))
		return
	}

	alert.SortForDisplay(alerts)

	respondJSON(w, http.StatusOK, AlertsResponse{
		Alerts: alerts,
		Total:  len(alerts),
	})
}

// handleAlertAction handles POST /v1/alerts/{id}/acknowledge
func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "acknowledge" {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid alert id: %s", parts[0]))
		return
	}

	if err := s.store.AcknowledgeAlert(r.Context(), id, time.Now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("alert not found: %d", id))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to acknowledge alert: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, AcknowledgeResponse{ID: id, Acknowledged: true})
}

// Helper functions

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return def
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}
