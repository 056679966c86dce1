package server

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"airtable-mcp-go/internal/mcp"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/telemetry"
)

// Config contains the HTTP surface configuration. Session lifetimes belong to
// the session manager and cleanup service, not to the router.
type Config struct {
	RequireSession bool
	// AllowedOrigins defaults to any origin when empty.
	AllowedOrigins []string
	Version        string
}

// Deps are the components the HTTP surface is assembled from.
type Deps struct {
	MCP     *mcp.Server
	Metrics *telemetry.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Tools    int    `json:"tools"`
	Sessions *int   `json:"sessions,omitempty"`
}

// New creates a new HTTP handler with the given configuration.
func New(cfg Config, deps Deps) (http.Handler, error) {
	if deps.MCP == nil {
		return nil, errors.New("server: MCP server is required")
	}
	logger := deps.Logger.With().Str("component", "http").Logger()

	mcpHandler := mcp.NewHTTPHandler(deps.MCP, mcp.HTTPConfig{RequireSession: cfg.RequireSession}, deps.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(telemetry.HTTPMetricsMiddleware(deps.Metrics))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.HeaderName, "Mcp-Protocol-Version"},
		ExposedHeaders:   []string{session.HeaderName, "Content-Type", "Cache-Control", "Connection"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Version: cfg.Version,
			Tools:   len(deps.MCP.Definitions()),
		}
		if sessions := deps.MCP.Sessions(); sessions != nil {
			if count, err := sessions.Count(r.Context()); err == nil {
				resp.Sessions = &count
			}
		}
		render.JSON(w, r, resp)
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	mcpHandler.Routes(r)

	logger.Info().
		Bool("require_session", cfg.RequireSession).
		Int("tools", len(deps.MCP.Definitions())).
		Msg("HTTP routes registered")

	return r, nil
}

// RequestLogger logs one line per request with the chi request ID.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("HTTP request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
