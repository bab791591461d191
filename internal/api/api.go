// Package api serves the operator JSON API: target management, settings,
// scheduler control and the log tail.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pagewatch/internal/model"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
)

// DefaultTail is the number of log lines returned when none is requested.
const DefaultTail = 50

// Scheduler is the polling loop as seen by the operator.
type Scheduler interface {
	Start(ctx context.Context) bool
	Stop() bool
	Running() bool
	CheckNow(ctx context.Context, id int64) (model.Event, error)
}

// CredentialTester verifies messaging credentials.
type CredentialTester interface {
	Test(ctx context.Context, settings model.Settings) error
}

// LogTail returns recent log lines.
type LogTail interface {
	Tail(n int) []string
}

// Server holds the API dependencies.
type Server struct {
	reg     *registry.Registry
	sched   Scheduler
	tester  CredentialTester
	logs    LogTail
	metrics http.Handler
	log     *slog.Logger

	// loopCtx outlives requests; a loop started over the API runs on it.
	loopCtx context.Context
}

// New creates a Server. loopCtx is handed to the scheduler when it is
// started through the API.
func New(loopCtx context.Context, reg *registry.Registry, sched Scheduler, tester CredentialTester, logs LogTail, log *slog.Logger) *Server {
	return &Server{
		reg:     reg,
		sched:   sched,
		tester:  tester,
		logs:    logs,
		log:     log,
		loopCtx: loopCtx,
	}
}

// SetMetricsHandler exposes h at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the API routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.Use(s.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/targets", s.handleListTargets).Methods(http.MethodGet)
	api.HandleFunc("/targets", s.handleAddTarget).Methods(http.MethodPost)
	api.HandleFunc("/targets/{id}", s.handleDeleteTarget).Methods(http.MethodDelete)
	api.HandleFunc("/targets/{id}/enable", s.handleSetEnabled(true)).Methods(http.MethodPost)
	api.HandleFunc("/targets/{id}/disable", s.handleSetEnabled(false)).Methods(http.MethodPost)
	api.HandleFunc("/targets/{id}/check", s.handleCheck).Methods(http.MethodPost)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSaveSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings/test", s.handleTestSettings).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/scheduler", s.handleSchedulerStatus).Methods(http.MethodGet)
	api.HandleFunc("/scheduler/start", s.handleSchedulerStart).Methods(http.MethodPost)
	api.HandleFunc("/scheduler/stop", s.handleSchedulerStop).Methods(http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// targetView is a target as listed to the operator. Content is reduced to
// whether one has been captured.
type targetView struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Mode          model.Mode `json:"mode"`
	Interval      int        `json:"interval"`
	Enabled       bool       `json:"enabled"`
	NotifyOnCheck bool       `json:"notify_on_check"`
	AttachContent bool       `json:"attach_content"`
	HasContent    bool       `json:"has_content"`
	LastChecked   string     `json:"last_checked,omitempty"`
}

func views(targets []model.Target) []targetView {
	out := make([]targetView, 0, len(targets))
	for _, t := range targets {
		v := targetView{
			ID:            t.ID,
			URL:           t.URL,
			Mode:          t.Mode,
			Interval:      t.Interval,
			Enabled:       t.Enabled,
			NotifyOnCheck: t.NotifyOnCheck,
			AttachContent: t.AttachContent,
			HasContent:    t.LastContent != nil,
		}
		if t.LastChecked > 0 {
			v.LastChecked = t.CheckedAt().UTC().Format(time.RFC3339)
		}
		out = append(out, v)
	}
	return out
}

type settingsView struct {
	ChannelToken string `json:"channel_token"`
	UserID       string `json:"user_id"`
	Configured   bool   `json:"configured"`
}

func maskSettings(st model.Settings) settingsView {
	return settingsView{
		ChannelToken: MaskToken(st.ChannelToken),
		UserID:       st.UserID,
		Configured:   st.HasCredentials(),
	}
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.reg.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views(targets))
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var nt registry.NewTarget
	if err := json.NewDecoder(r.Body).Decode(&nt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	targets, err := s.reg.Add(r.Context(), nt)
	if err != nil {
		s.failRegistry(w, err)
		return
	}
	s.log.Info("target added", "url", nt.URL, "mode", nt.Mode, "interval", nt.Interval)
	writeJSON(w, http.StatusCreated, views(targets))
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		targets, err := s.reg.SetEnabled(r.Context(), id, enabled)
		if err != nil {
			s.failRegistry(w, err)
			return
		}
		s.log.Info("target updated", "target_id", id, "enabled", enabled)
		writeJSON(w, http.StatusOK, views(targets))
	}
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targets, err := s.reg.Delete(r.Context(), id)
	if err != nil {
		s.failRegistry(w, err)
		return
	}
	s.log.Info("target deleted", "target_id", id)
	writeJSON(w, http.StatusOK, views(targets))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := s.sched.CheckNow(r.Context(), id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"event": ev.String()})
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.reg.Settings(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, maskSettings(st))
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.reg.SaveSettings(r.Context(), st); err != nil {
		s.failRegistry(w, err)
		return
	}
	s.log.Info("settings saved")
	saved, err := s.reg.Settings(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, maskSettings(saved))
}

func (s *Server) handleTestSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.reg.Settings(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.tester.Test(r.Context(), st); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, notify.ErrNoCredentials) {
			status = http.StatusBadRequest
		}
		s.log.Warn("credential test failed", "error", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n, err := ParseTailCount(r.URL.Query().Get("n"), DefaultTail)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines := s.logs.Tail(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

type schedulerStatus struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, schedulerStatus{Running: s.sched.Running()})
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, _ *http.Request) {
	changed := s.sched.Start(s.loopCtx)
	if changed {
		s.log.Info("scheduler start requested")
	}
	writeJSON(w, http.StatusOK, schedulerStatus{Running: s.sched.Running(), Changed: changed})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, _ *http.Request) {
	changed := s.sched.Stop()
	if changed {
		s.log.Info("scheduler stop requested")
	}
	writeJSON(w, http.StatusOK, schedulerStatus{Running: s.sched.Running(), Changed: changed})
}

// failRegistry maps registry errors to HTTP statuses.
func (s *Server) failRegistry(w http.ResponseWriter, err error) {
	var ve *registry.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.fail(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.log.Error("api request", "status", status, "error", err)
	writeError(w, status, http.StatusText(status))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
