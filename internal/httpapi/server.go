package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
	"quantlab/internal/store"
)

// Server serves the backtest REST API.
type Server struct {
	svc *backtest.Service
	log *slog.Logger
}

// NewServer creates a Server around the backtest service. A nil logger falls
// back to slog.Default().
func NewServer(svc *backtest.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, log: logger.With("component", "httpapi")}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtests", s.handleSubmit)
	mux.HandleFunc("GET /api/backtests", s.handleList)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGet)
	mux.HandleFunc("POST /api/backtests/{id}/cancel", s.handleCancel)
	mux.HandleFunc("DELETE /api/backtests/{id}", s.handleDelete)

	mux.HandleFunc("POST /api/strategies", s.handleCreateStrategy)
	mux.HandleFunc("GET /api/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("DELETE /api/strategies/{id}", s.handleDeleteStrategy)

	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Handler returns the routed handler wrapped with request logging and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.logMiddleware(mux))
}

// ---------------------------------------------------------------------------
// Backtest handlers
// ---------------------------------------------------------------------------

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var wire SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	req, err := wire.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.svc.Submit(r.Context(), req, requestRole(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitResponse{ID: id, Status: domain.RunPending})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := domain.RunFilter{
		StrategyID: r.URL.Query().Get("strategy_id"),
		Status:     domain.RunStatus(r.URL.Query().Get("status")),
	}
	runs, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.BacktestRun{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Cancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Strategy handlers
// ---------------------------------------------------------------------------

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var wire CreateStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	strat, err := s.svc.CreateStrategy(r.Context(), wire.Name, wire.Description, wire.Config)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(strat)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.svc.ListStrategies(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if strategies == nil {
		strategies = []domain.Strategy{}
	}
	writeJSON(w, strategies)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	strat, err := s.svc.GetStrategy(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, strat)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteStrategy(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"})
}

// ---------------------------------------------------------------------------
// Plumbing
// ---------------------------------------------------------------------------

// requestRole reads the caller's role from the X-User-Role header.
func requestRole(r *http.Request) domain.Role {
	return domain.Role(r.Header.Get("X-User-Role"))
}

// writeServiceError maps service-layer errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var validation *backtest.ValidationError
	switch {
	case errors.Is(err, backtest.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, backtest.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, backtest.ErrRunNotActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Role")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
