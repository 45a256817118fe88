// Package server exposes the session controller over a loopback HTTP API
// and serves the blocked page used by the redirect tier.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// BlockedPath is the route of the blocked page.
const BlockedPath = "/blocked"

// SessionService is the controller surface the API drives.
type SessionService interface {
	Start(ctx context.Context, domains []string, timeLimit time.Duration) (domain.SessionRecord, error)
	Stop(ctx context.Context) error
	SessionData(ctx context.Context) (*domain.SessionRecord, []domain.SessionRecord, error)
	Snapshot() domain.SessionSnapshot
	AddTask(ctx context.Context, text string) (domain.Task, error)
	ToggleTask(ctx context.Context, id string) (domain.Task, error)
	RemoveTask(ctx context.Context, id string) error
	SetDisplayName(ctx context.Context, name string) error
	DisplayName(ctx context.Context) string
}

// StartRequest is the START_TRACKING command body.
type StartRequest struct {
	Domains     []string `json:"domains"`
	TimeLimitMs int64    `json:"timeLimitMs"`
}

// StatusResponse acknowledges a command.
type StatusResponse struct {
	Status string `json:"status"`
}

// SessionDataResponse answers GET_SESSION_DATA.
type SessionDataResponse struct {
	CurrentSession *domain.SessionRecord  `json:"currentSession"`
	Sessions       []domain.SessionRecord `json:"sessions"`
}

// TaskRequest adds a task.
type TaskRequest struct {
	Text string `json:"text"`
}

// NameRequest sets the display name.
type NameRequest struct {
	DisplayName string `json:"displayName"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the control API.
type Server struct {
	router *mux.Router
	svc    SessionService
	logger *zap.Logger
}

// New creates the control API. A nil gatherer disables /metrics.
func New(svc SessionService, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		svc:    svc,
		logger: logger,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc(BlockedPath, s.handleBlocked).Methods("GET")
	s.router.HandleFunc(CompletePath, s.handleComplete).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/start", s.handleStart).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/tasks", s.handleAddTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/toggle", s.handleToggleTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleRemoveTask).Methods("DELETE")
	api.HandleFunc("/name", s.handleSetName).Methods("PUT")

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	limit := time.Duration(req.TimeLimitMs) * time.Millisecond
	if _, err := s.svc.Start(r.Context(), req.Domains, limit); err != nil {
		s.writeServiceError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Stop(r.Context()); err != nil {
		// The session is already finalized in memory; only archiving failed.
		s.logger.Error("stop failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "stopped"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	current, history, err := s.svc.SessionData(r.Context())
	if err != nil {
		s.writeServiceError(w, "session data", err)
		return
	}
	if history == nil {
		history = []domain.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, SessionDataResponse{CurrentSession: current, Sessions: history})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := s.svc.AddTask(r.Context(), req.Text)
	if err != nil {
		s.writeServiceError(w, "add task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.ToggleTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, "toggle task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, "remove task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.SetDisplayName(r.Context(), req.DisplayName); err != nil {
		s.writeServiceError(w, "set name", err)
		return
	}
	writeJSON(w, http.StatusOK, NameRequest{DisplayName: s.svc.DisplayName(r.Context())})
}

// writeServiceError maps controller errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionActive), errors.Is(err, domain.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPolicy), errors.Is(err, domain.ErrEmptyTask):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTaskNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
