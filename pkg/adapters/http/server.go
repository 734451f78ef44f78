// Package http exposes flow sessions over a JSON API with server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// KeepAliveInterval is how often idle event streams receive a comment line.
const KeepAliveInterval = 15 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(context.Context) error

// Server handles the HTTP API.
type Server struct {
	manager  *session.Manager
	loader   ports.FlowLoader
	spec     *openapi3.T
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	origins  []string

	autoStart bool
	restart   flowchat.RestartPolicy
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithAllowedOrigins sets the CORS origins. Default is "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithAutoStart starts new sessions on creation when the flow shows no start button.
func WithAutoStart(on bool) Option {
	return func(s *Server) {
		s.autoStart = on
	}
}

// WithRestartPolicy sets the policy of sessions created through the API.
func WithRestartPolicy(p flowchat.RestartPolicy) Option {
	return func(s *Server) {
		s.restart = p
	}
}

// NewHandler builds the router. loader backs the flow listing endpoints.
func NewHandler(ctx context.Context, manager *session.Manager, loader ports.FlowLoader, opts ...Option) (http.Handler, error) {
	spec, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{
		manager: manager,
		loader:  loader,
		spec:    spec,
		logger:  logging.NewNop(),
		checks:  make(map[string]HealthCheck),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.routes(), nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/health", s.getHealth)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/flows", s.listFlows)
	r.Get("/flows/{flowID}", s.getFlow)
	r.With(s.validateBody).Post("/flows/{flowID}/sessions", s.createSession)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.closeSession)
		r.Get("/events", s.subscribeEvents)
		r.Group(func(r chi.Router) {
			r.Use(s.validateBody)
			r.Post("/start", s.startSession)
			r.Post("/messages", s.sendMessage)
			r.Post("/inputs/{nodeID}", s.submitInput)
			r.Post("/restart", s.restartSession)
		})
	})
	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.origins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// sessionView is the JSON shape of a session.
type sessionView struct {
	*domain.SessionState
	Started               bool   `json:"started"`
	Completed             bool   `json:"completed"`
	WaitingForInteraction bool   `json:"waitingForInteraction"`
	PendingNodeID         string `json:"pendingNodeId,omitempty"`
}

func newSessionView(st *domain.SessionState) sessionView {
	return sessionView{
		SessionState:          st,
		Started:               st.Started(),
		Completed:             st.Completed(),
		WaitingForInteraction: st.WaitingForInteraction(),
		PendingNodeID:         st.PendingNodeID(),
	}
}

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
	Preview   bool   `json:"preview"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type inputRequest struct {
	Value string `json:"value"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := map[string]string{}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	s.writeJSON(w, status, map[string]any{
		"status":      state,
		"version":     strings.TrimSpace(flowchat.Version),
		"api_version": s.spec.Info.Version,
		"checks":      results,
	})
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	ids, err := s.loader.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"flows": ids})
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	def, err := s.loader.Load(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = clientIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	sess, err := s.manager.Create(r.Context(), chi.URLParam(r, "flowID"), flowchat.SessionOptions{
		SessionID: req.SessionID,
		Preview:   req.Preview,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		AutoStart: s.autoStart,
		Restart:   s.restart,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+sess.ID())
	s.writeJSON(w, http.StatusCreated, newSessionView(sess.Snapshot()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionView(st))
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession resolves the session and replies with its snapshot after fn.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(context.Context, *flowchat.Session) error) {
	sess, err := s.manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := fn(r.Context(), sess); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionView(sess.Snapshot()))
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.Start(ctx)
	})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.SendFreeText(ctx, req.Text)
	})
}

func (s *Server) submitInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	s.withSession(w, r, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.SubmitInput(ctx, nodeID, req.Value)
	})
}

func (s *Server) restartSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.Restart(ctx)
	})
}

// subscribeEvents streams the full state once, then JSON diffs.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.manager.Get(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		watch = strings.Split(v, ",")
	}

	ch, cancel := s.manager.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: ping\ndata: connected\n\n")
	if initial, err := json.Marshal(domain.Diff(nil, sess.Snapshot())); err == nil {
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", initial)
	}
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "session_id", sessionID)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			if len(watch) > 0 {
				var diff domain.StateDiff
				if err := json.Unmarshal([]byte(msg), &diff); err == nil && !session.MatchesWatch(&diff, watch) {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// fail maps engine errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var (
		inputErr  *domain.InputValidationError
		configErr *domain.FlowConfigurationError
	)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrFlowNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionClosed):
		s.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrNoActivePrompt), errors.Is(err, domain.ErrPromptSubmitted):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInputTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &inputErr), errors.As(err, &configErr), errors.Is(err, domain.ErrInvalidUTF8):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
