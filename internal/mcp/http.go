package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/jsonrpc"
	"airtable-mcp-go/internal/session"
)

// MaxRequestBodySize bounds a single JSON-RPC message.
const MaxRequestBodySize = 1 << 20

// HTTPConfig configures the HTTP transports.
type HTTPConfig struct {
	// RequireSession rejects non-initialize requests without a live session.
	RequireSession bool
}

// HTTPHandler serves MCP over streamable HTTP and the legacy SSE endpoint.
type HTTPHandler struct {
	server         *Server
	requireSession bool
	logger         zerolog.Logger
}

// NewHTTPHandler creates an HTTP handler for server.
func NewHTTPHandler(server *Server, cfg HTTPConfig, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		server:         server,
		requireSession: cfg.RequireSession && server.Sessions() != nil,
		logger:         logger.With().Str("component", "mcp_http").Logger(),
	}
}

// Routes mounts the MCP endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/mcp", h.HandlePost)
	r.Delete("/mcp", h.HandleDelete)
	r.Get("/mcp", h.methodNotAllowed)
	r.Post("/sse", h.HandleSSE)
}

type writeFunc func(w http.ResponseWriter, r *http.Request, status int, resp *jsonrpc.Response)

// HandlePost handles POST /mcp with a JSON response body.
func (h *HTTPHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, writeJSON)
}

// HandleSSE handles POST /sse, answering with a single server-sent event.
func (h *HTTPHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.writeEvent)
}

// HandleDelete terminates the session named by the session header.
func (h *HTTPHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(session.HeaderName)
	if sessionID == "" {
		http.Error(w, "Session ID required in "+session.HeaderName+" header", http.StatusBadRequest)
		return
	}
	if h.server.Sessions() == nil {
		http.Error(w, "Sessions are disabled", http.StatusMethodNotAllowed)
		return
	}

	if err := h.server.Sessions().Delete(r.Context(), sessionID); err != nil {
		h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Session deletion failed")
		http.Error(w, err.Error(), sessionStatus(err))
		return
	}

	h.logger.Info().Str("session_id", sessionID).Msg("Session terminated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "POST, DELETE")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func (h *HTTPHandler) serve(w http.ResponseWriter, r *http.Request, write writeFunc) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		write(w, r, http.StatusBadRequest, jsonrpc.NewErrorResponse(nil,
			jsonrpc.NewError(jsonrpc.ParseError, "Failed to read request body", nil)))
		return
	}
	if len(body) > MaxRequestBodySize {
		write(w, r, http.StatusRequestEntityTooLarge, jsonrpc.NewErrorResponse(nil,
			jsonrpc.NewError(jsonrpc.InvalidRequest, "Request body too large", nil)))
		return
	}

	req, rpcErr := jsonrpc.ParseRequest(body)
	if rpcErr != nil {
		h.logger.Debug().Str("reason", rpcErr.Message).Msg("Malformed request")
		write(w, r, http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, rpcErr))
		return
	}

	ctx := r.Context()
	if req.Method != MethodInitialize && h.requireSession {
		sessionID := r.Header.Get(session.HeaderName)
		if sessionID == "" {
			write(w, r, http.StatusBadRequest, jsonrpc.NewErrorResponse(req.ID,
				jsonrpc.NewError(jsonrpc.InvalidRequest, "Session ID required in "+session.HeaderName+" header", nil)))
			return
		}
		sess, err := h.server.Sessions().Touch(ctx, sessionID)
		if err != nil {
			h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Session validation failed")
			write(w, r, sessionStatus(err), jsonrpc.NewErrorResponse(req.ID,
				jsonrpc.NewError(jsonrpc.InvalidRequest, err.Error(), map[string]string{
					"session_id": sessionID,
					"error_code": session.Code(err),
				})))
			return
		}
		ctx = session.WithSession(ctx, sess)
	}

	client := session.ClientInfo{
		Transport:  "http",
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	resp, sess := h.server.Handle(ctx, req, client)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if sess != nil {
		w.Header().Set(session.HeaderName, sess.ID)
	}
	write(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp *jsonrpc.Response) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (h *HTTPHandler) writeEvent(w http.ResponseWriter, _ *http.Request, status int, resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(status)

	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func sessionStatus(err error) int {
	switch session.Code(err) {
	case session.ErrSessionInvalid:
		return http.StatusBadRequest
	case session.ErrSessionNotFound, session.ErrSessionExpired:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
