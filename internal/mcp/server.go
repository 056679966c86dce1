package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/jsonrpc"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/tools"
)

// LatestProtocolVersion is offered to clients that request a version we do not know.
const LatestProtocolVersion = "2025-06-18"

// ServerName is reported in serverInfo.
const ServerName = "airtable-mcp-go"

var supportedProtocolVersions = map[string]bool{
	"2024-11-05":          true,
	"2025-03-26":          true,
	LatestProtocolVersion: true,
}

// MCP method names
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Implementation names a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ClientInfo      Implementation  `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type ListToolsResult struct {
	Tools []tools.Definition `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Config holds the dependencies of a Server.
type Config struct {
	Caller tools.Caller
	// Sessions is optional. Without it initialize opens no session.
	Sessions      session.Manager
	ServerVersion string
	Instructions  string
	Logger        zerolog.Logger
}

// Server answers MCP requests independently of the transport that carried them.
type Server struct {
	caller       tools.Caller
	sessions     session.Manager
	info         Implementation
	instructions string
	logger       zerolog.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}
	return &Server{
		caller:       cfg.Caller,
		sessions:     cfg.Sessions,
		info:         Implementation{Name: ServerName, Version: version},
		instructions: cfg.Instructions,
		logger:       cfg.Logger.With().Str("component", "mcp_server").Logger(),
	}
}

// Sessions returns the session manager, which may be nil.
func (s *Server) Sessions() session.Manager {
	return s.sessions
}

// Definitions returns the tools offered to clients.
func (s *Server) Definitions() []tools.Definition {
	return s.caller.Definitions()
}

// Handle answers one request. Notifications yield a nil response. A non-nil
// session is returned when initialize opened one.
func (s *Server) Handle(ctx context.Context, req *jsonrpc.Request, client session.ClientInfo) (*jsonrpc.Response, *session.Session) {
	logger := s.logger.With().Str("method", req.Method).Logger()
	if sess, ok := session.FromContext(ctx); ok {
		logger = logger.With().Str("session_id", sess.ID).Logger()
	}

	if req.IsNotification() {
		logger.Debug().Msg("Notification accepted")
		return nil, nil
	}

	switch req.Method {
	case MethodInitialize:
		return s.initialize(ctx, req, client, logger)
	case MethodPing:
		return jsonrpc.NewResult(req.ID, struct{}{}), nil
	case MethodToolsList:
		defs := s.Definitions()
		logger.Debug().Int("count", len(defs)).Msg("Listing tools")
		return jsonrpc.NewResult(req.ID, ListToolsResult{Tools: defs}), nil
	case MethodToolsCall:
		return s.callTool(ctx, req, logger), nil
	default:
		logger.Warn().Msg("Method not found")
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.MethodNotFound, "Method not found", req.Method)), nil
	}
}

func (s *Server) initialize(ctx context.Context, req *jsonrpc.Request, client session.ClientInfo, logger zerolog.Logger) (*jsonrpc.Response, *session.Session) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID,
				jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid initialize params", err.Error())), nil
		}
	}

	version := NegotiateProtocolVersion(params.ProtocolVersion)
	client.Name = params.ClientInfo.Name
	client.Version = params.ClientInfo.Version

	var sess *session.Session
	if s.sessions != nil {
		var err error
		sess, err = s.sessions.Create(ctx, version, client)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create session")
			return jsonrpc.NewErrorResponse(req.ID,
				jsonrpc.NewError(jsonrpc.InternalError, "Failed to create session", nil)), nil
		}
		logger = logger.With().Str("session_id", sess.ID).Logger()
	}

	logger.Info().
		Str("client", client.Name).
		Str("client_version", client.Version).
		Str("requested_version", params.ProtocolVersion).
		Str("protocol_version", version).
		Msg("Client initialized")

	return jsonrpc.NewResult(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}), sess
}

func (s *Server) callTool(ctx context.Context, req *jsonrpc.Request, logger zerolog.Logger) *jsonrpc.Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID,
				jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid tools/call params", err.Error()))
		}
	}
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.InvalidParams, "Tool name is required", nil))
	}

	args, f := tools.ParseParams(params.Arguments)
	if f != nil {
		logger.Debug().Str("tool", params.Name).Str("reason", f.Message).Msg("Rejected tool arguments")
		return jsonrpc.NewResult(req.ID, RenderFailure(f))
	}

	start := time.Now()
	res := s.caller.Dispatch(ctx, params.Name, args)
	logger.Debug().
		Str("tool", params.Name).
		Bool("ok", res.OK()).
		Dur("duration", time.Since(start)).
		Msg("Tool call rendered")

	return jsonrpc.NewResult(req.ID, Render(res))
}

// NegotiateProtocolVersion echoes a supported version and otherwise offers the latest.
func NegotiateProtocolVersion(requested string) string {
	if supportedProtocolVersions[requested] {
		return requested
	}
	return LatestProtocolVersion
}
