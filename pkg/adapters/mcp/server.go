// Package mcp exposes flow sessions as Model Context Protocol tools, so an
// agent can walk a conversation the way a visitor would.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName is reported to clients during initialization.
	ServerName = "flowchat-mcp"

	// MaxSettle caps how long a tool call waits for pending bot messages.
	MaxSettle = 10 * time.Second

	flowsURI      = "flowchat://flows"
	flowURIPrefix = "flowchat://flows/"
)

// SessionView is the structured result of every session tool.
type SessionView struct {
	SessionID             string                 `json:"session_id" jsonschema_description:"Session identifier; may change after a restart"`
	FlowID                string                 `json:"flow_id"`
	Mode                  domain.Mode            `json:"mode" jsonschema_description:"idle, active, gated, awaiting_input, halted or completed"`
	Timeline              []domain.TimelineEvent `json:"timeline" jsonschema_description:"Every bubble shown so far, in order"`
	Variables             map[string]string      `json:"variables"`
	Typing                bool                   `json:"typing"`
	WaitingForInteraction bool                   `json:"waiting_for_interaction" jsonschema_description:"True when the bot waits for any message before continuing"`
	PendingPrompt         *domain.InputPrompt    `json:"pending_prompt,omitempty" jsonschema_description:"The form to answer with submit_input"`
	RedirectURL           string                 `json:"redirect_url,omitempty"`
}

func newSessionView(st *domain.SessionState) SessionView {
	v := SessionView{
		SessionID:             st.SessionID,
		FlowID:                st.FlowID,
		Mode:                  st.Mode,
		Timeline:              st.Timeline,
		Variables:             st.Variables,
		Typing:                st.Typing,
		WaitingForInteraction: st.WaitingForInteraction(),
		RedirectURL:           st.RedirectURL,
	}
	if p, ok := st.ActivePrompt(); ok {
		v.PendingPrompt = p
	}
	return v
}

type startArgs struct {
	FlowID    string  `json:"flow_id"`
	SessionID string  `json:"session_id"`
	Preview   bool    `json:"preview"`
	WaitMS    float64 `json:"wait_ms"`
}

type sessionArgs struct {
	SessionID string  `json:"session_id"`
	WaitMS    float64 `json:"wait_ms"`
}

type messageArgs struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	WaitMS    float64 `json:"wait_ms"`
}

type inputArgs struct {
	SessionID string  `json:"session_id"`
	NodeID    string  `json:"node_id"`
	Value     string  `json:"value"`
	WaitMS    float64 `json:"wait_ms"`
}

// Server wraps a session manager and exposes it as an MCP server.
type Server struct {
	manager   *session.Manager
	loader    ports.FlowLoader
	logger    *slog.Logger
	restart   flowchat.RestartPolicy
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger used for tool failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRestartPolicy sets the policy applied to sessions created by start_session.
func WithRestartPolicy(p flowchat.RestartPolicy) Option {
	return func(s *Server) {
		s.restart = p
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(manager *session.Manager, loader ports.FlowLoader, opts ...Option) *Server {
	s := &Server{
		manager:   manager,
		loader:    loader,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer(ServerName, strings.TrimSpace(flowchat.Version), server.WithToolCapabilities(false), server.WithResourceCapabilities(false, false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "transport", "sse", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func waitOption() mcp.ToolOption {
	return mcp.WithNumber("wait_ms",
		mcp.Description("Milliseconds to wait for pending bot messages before replying (max 10000)"),
	)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Open a new visitor session on a flow and start the conversation."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow to run")),
		mcp.WithString("session_id", mcp.Description("Session identifier (optional, generated when empty)")),
		mcp.WithBoolean("preview", mcp.Description("Author test run: no lead record and no redirect")),
		waitOption(),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send free text as the visitor. Releases an interaction gate; ignored otherwise."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		waitOption(),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleMessage))

	s.mcpServer.AddTool(mcp.NewTool("submit_input",
		mcp.WithDescription("Answer the pending input form."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node of the pending prompt")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Answer; validated against the prompt's input type")),
		waitOption(),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleInput))

	s.mcpServer.AddTool(mcp.NewTool("restart_session",
		mcp.WithDescription("Clear the conversation and start the flow again."),
		mcp.WithString("session_id", mcp.Required()),
		waitOption(),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleRestart))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Read the current state of a session."),
		mcp.WithString("session_id", mcp.Required()),
		waitOption(),
		mcp.WithOutputSchema[SessionView](),
	), mcp.NewStructuredToolHandler(s.handleGet))
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args startArgs) (SessionView, error) {
	sess, err := s.manager.Create(ctx, args.FlowID, flowchat.SessionOptions{
		SessionID: args.SessionID,
		Preview:   args.Preview,
		UserAgent: ServerName,
		Restart:   s.restart,
	})
	if err != nil {
		return SessionView{}, s.toolError("start_session", err)
	}
	if err := sess.Start(ctx); err != nil {
		return SessionView{}, s.toolError("start_session", err)
	}
	return s.settle(ctx, sess, args.WaitMS), nil
}

func (s *Server) handleMessage(ctx context.Context, _ mcp.CallToolRequest, args messageArgs) (SessionView, error) {
	return s.withSession(ctx, "send_message", args.SessionID, args.WaitMS, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.SendFreeText(ctx, args.Text)
	})
}

func (s *Server) handleInput(ctx context.Context, _ mcp.CallToolRequest, args inputArgs) (SessionView, error) {
	return s.withSession(ctx, "submit_input", args.SessionID, args.WaitMS, func(ctx context.Context, sess *flowchat.Session) error {
		return sess.SubmitInput(ctx, args.NodeID, args.Value)
	})
}

func (s *Server) handleRestart(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionView, error) {
	return s.withSession(ctx, "restart_session", args.SessionID, args.WaitMS, func(ctx context.Context, sess *flowchat.Session) error {
		if err := sess.Restart(ctx); err != nil {
			return err
		}
		return sess.Start(ctx)
	})
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionView, error) {
	return s.withSession(ctx, "get_session", args.SessionID, args.WaitMS, nil)
}

func (s *Server) withSession(ctx context.Context, tool, sessionID string, waitMS float64, fn func(context.Context, *flowchat.Session) error) (SessionView, error) {
	sess, err := s.manager.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, s.toolError(tool, err)
	}
	if fn != nil {
		if err := fn(ctx, sess); err != nil {
			return SessionView{}, s.toolError(tool, err)
		}
	}
	return s.settle(ctx, sess, waitMS), nil
}

// settle waits up to waitMS for the session to leave ModeActive, then
// returns its snapshot.
func (s *Server) settle(ctx context.Context, sess *flowchat.Session, waitMS float64) SessionView {
	wait := time.Duration(waitMS) * time.Millisecond
	if wait > MaxSettle {
		wait = MaxSettle
	}
	if wait <= 0 || sess.Mode() != domain.ModeActive {
		return newSessionView(sess.Snapshot())
	}

	updates, cancel := s.manager.Subscribe(sess.ID())
	defer cancel()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for sess.Mode() == domain.ModeActive {
		select {
		case _, ok := <-updates:
			if !ok {
				return newSessionView(sess.Snapshot())
			}
		case <-timer.C:
			return newSessionView(sess.Snapshot())
		case <-ctx.Done():
			return newSessionView(sess.Snapshot())
		}
	}
	return newSessionView(sess.Snapshot())
}

// toolError turns engine failures into messages an agent can act on.
func (s *Server) toolError(tool string, err error) error {
	var (
		inputErr  *domain.InputValidationError
		configErr *domain.FlowConfigurationError
	)
	switch {
	case errors.As(err, &inputErr),
		errors.Is(err, domain.ErrInputTooLarge),
		errors.Is(err, domain.ErrInvalidUTF8):
		return fmt.Errorf("answer rejected, ask again: %w", err)
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrNoActivePrompt),
		errors.Is(err, domain.ErrPromptSubmitted),
		errors.As(err, &configErr):
		return err
	default:
		s.logger.Error("mcp tool failed", "tool", tool, "err", err)
		return err
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(flowsURI, "Available flows",
		mcp.WithResourceDescription("Identifiers of every flow the server can run"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.loader.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list flows: %w", err)
		}
		return jsonResource(flowsURI, map[string]any{"flows": ids})
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(flowURIPrefix+"{flowID}", "Flow definition",
		mcp.WithTemplateDescription("Nodes and edges of one flow"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		flowID := strings.TrimPrefix(uri, flowURIPrefix)
		if flowID == "" || flowID == uri {
			return nil, fmt.Errorf("invalid flow uri %q", uri)
		}
		def, err := s.loader.Load(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
		}
		return jsonResource(uri, def)
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
