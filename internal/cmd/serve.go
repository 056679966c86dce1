package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"airtable-mcp-go/internal/server"
	"airtable-mcp-go/internal/session"
	"airtable-mcp-go/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP",
	Long: `Serve MCP over streamable HTTP (POST/DELETE /mcp) and the legacy
single-event SSE endpoint (POST /sse). /health and /metrics are served alongside.

SIGINT or SIGTERM shuts the server down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(os.Stderr)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		st, err := buildStack(cfg, logger)
		if err != nil {
			return err
		}
		defer st.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cleanup := session.NewCleanupService(st.sessions,
			session.CleanupConfig{CleanupInterval: cfg.Session.CleanupInterval}, logger)
		cleanup.Start(ctx)
		defer cleanup.Stop()

		collector := telemetry.NewSystemMetricsCollector(st.metrics, st.governor, st.sessions, logger, 0)
		collector.Start(ctx)
		defer collector.Stop()

		handler, err := server.New(server.Config{
			RequireSession: cfg.Server.RequireSession,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Version:        versionInfo.Version,
		}, server.Deps{
			MCP:      st.mcpServer(),
			Metrics:  st.metrics,
			Gatherer: st.registry,
			Logger:   logger,
		})
		if err != nil {
			return errors.Wrap(err, "create server")
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			defer close(errCh)
			logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("version", versionInfo.Version).
				Msg("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return errors.Wrap(err, "http server")
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		logger.Info().Msg("HTTP server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
