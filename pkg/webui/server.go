// Package webui provides the HTTP API for driving and observing a boardroom
// session. Orchestrations started here run in the background; clients poll
// the snapshot endpoints.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boardroom/pkg/logx"
	"boardroom/pkg/meeting"
	"boardroom/pkg/version"
)

const (
	maxBodyBytes   = 64 << 10
	maxLogEntries  = 1000
	maxLongPoll    = 30 * time.Second
	defaultTimeout = 5 * time.Second
)

// Server represents the web UI HTTP server.
type Server struct {
	session  *meeting.Session
	gatherer prometheus.Gatherer
	logger   *logx.Logger
	model    string
}

// NewServer creates a server for session. A nil gatherer disables /metrics.
func NewServer(session *meeting.Session, model string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		session:  session,
		gatherer: gatherer,
		model:    model,
		logger:   logx.NewLogger("webui"),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/healthz", get(s.handleHealth))
	mux.HandleFunc("/api/roster", get(s.handleRoster))
	mux.HandleFunc("/api/messages", get(s.handleMessages))
	mux.HandleFunc("/api/logs", get(s.handleLogs))

	// Chat.
	mux.HandleFunc("/api/chat", post(s.handleChat))
	mux.HandleFunc("/api/chat/target", post(s.handleChatTarget))
	mux.HandleFunc("/api/chat/cancel", post(s.handleChatCancel))

	// Discussion.
	mux.HandleFunc("/api/discussion", get(s.handleDiscussion))
	mux.HandleFunc("/api/discussion/start", post(s.handleDiscussionStart))
	mux.HandleFunc("/api/discussion/cancel", post(s.handleDiscussionCancel))

	// Debate arena.
	mux.HandleFunc("/api/arena", get(s.handleArena))
	mux.HandleFunc("/api/arena/open", post(s.arenaAction(func(a *meeting.Arena, _ request) error { return a.Open() })))
	mux.HandleFunc("/api/arena/close", post(s.arenaAction(func(a *meeting.Arena, _ request) error { a.Close(); return nil })))
	mux.HandleFunc("/api/arena/select", post(s.arenaAction(func(a *meeting.Arena, req request) error { return a.Select(req.ID) })))
	mux.HandleFunc("/api/arena/deselect", post(s.arenaAction(func(a *meeting.Arena, req request) error { return a.Deselect(req.ID) })))
	mux.HandleFunc("/api/arena/confirm", post(s.arenaAction(func(a *meeting.Arena, _ request) error { return a.ConfirmAgents() })))
	mux.HandleFunc("/api/arena/rounds", post(s.arenaAction(func(a *meeting.Arena, req request) error { return a.SetRounds(req.Rounds) })))
	mux.HandleFunc("/api/arena/start", post(s.handleArenaStart))
	mux.HandleFunc("/api/arena/cancel", post(s.arenaAction(func(a *meeting.Arena, _ request) error { a.Cancel(); return nil })))

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serve(ctx, listener, shutdownTimeout)
}

func (s *Server) serve(ctx context.Context, listener net.Listener, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultTimeout
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting web UI server on %s (HTTP)", listener.Addr())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web UI server failed: %w", err)
	case <-ctx.Done():
	}

	// The parent context is cancelled; shutdown needs a fresh one.
	s.logger.Info("Shutting down web UI server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // parent context is cancelled
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	<-errCh
	return nil
}

// request is the union of the POST bodies.
type request struct {
	Text   string `json:"text"`
	ID     string `json:"id"`
	Topic  string `json:"topic"`
	Rounds int    `json:"rounds"`
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, h)
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, h)
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (request, bool) {
	var req request
	if r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps orchestration errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, meeting.ErrBusy),
		errors.Is(err, meeting.ErrInvalidPhase),
		errors.Is(err, meeting.ErrSlotsFull):
		status = http.StatusConflict
	case errors.Is(err, meeting.ErrEmptyTopic),
		errors.Is(err, meeting.ErrEmptyMessage),
		errors.Is(err, meeting.ErrUnknownPersona):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed: %v", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Model  string `json:"model"`
		Mode   string `json:"mode"`
		version.Info
	}{Status: "ok", Model: s.model, Mode: s.session.Mode(), Info: version.Get()})
}

func (s *Server) handleRoster(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Roster().All())
}

// handleMessages implements GET /api/messages. With ?since=<revision> it
// waits up to ?wait=<seconds> for a newer revision before answering.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if sinceStr := query.Get("since"); sinceStr != "" {
		since, err := strconv.ParseUint(sinceStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		wait := maxLongPoll
		if waitStr := query.Get("wait"); waitStr != "" {
			secs, err := strconv.Atoi(waitStr)
			if err != nil || secs < 0 {
				http.Error(w, "Invalid wait parameter", http.StatusBadRequest)
				return
			}
			wait = min(time.Duration(secs)*time.Second, maxLongPoll)
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		_, _ = s.session.Transcript().Wait(ctx, since) //nolint:errcheck // timeout just returns the current view
		cancel()
	}
	s.writeJSON(w, http.StatusOK, s.session.Messages())
}

// handleLogs implements GET /api/logs from the in-memory log buffer.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	domain := query.Get("domain")
	sinceStr := query.Get("since")

	var since time.Time
	if sinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.logger.Warn("Invalid since parameter: %s", sinceStr)
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
	}

	logs := logx.GetRecentLogEntries(domain, since)
	if len(logs) > maxLogEntries {
		logs = logs[len(logs)-maxLogEntries:]
	}
	s.writeJSON(w, http.StatusOK, logs)
	s.logger.Debug("Served %d log entries (domain=%s, since=%s)", len(logs), domain, sinceStr)
}

// handleChat implements POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if err := s.session.SendChat(req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.session.Messages())
}

// handleChatTarget implements POST /api/chat/target; an empty id clears it.
func (s *Server) handleChatTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if err := s.session.SetTarget(req.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"target": s.session.Target()})
}

func (s *Server) handleChatCancel(w http.ResponseWriter, _ *http.Request) {
	s.session.CancelChat()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiscussion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Discussion())
}

func (s *Server) handleDiscussionStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if err := s.session.StartDiscussion(req.Topic); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.session.Discussion())
}

func (s *Server) handleDiscussionCancel(w http.ResponseWriter, _ *http.Request) {
	s.session.CancelDiscussion()
	s.writeJSON(w, http.StatusOK, s.session.Discussion())
}

type arenaView struct {
	meeting.ArenaState
	RoundOptions []int `json:"roundOptions"`
}

func (s *Server) arenaView() arenaView {
	return arenaView{ArenaState: s.session.Arena().State(), RoundOptions: meeting.RoundOptions()}
}

func (s *Server) handleArena(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.arenaView())
}

// arenaAction runs a synchronous arena transition and answers with the new state.
func (s *Server) arenaAction(fn func(*meeting.Arena, request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decode(w, r)
		if !ok {
			return
		}
		if err := fn(s.session.Arena(), req); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.arenaView())
	}
}

func (s *Server) handleArenaStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	if err := s.session.StartDebate(req.Topic); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.arenaView())
}
