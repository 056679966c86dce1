package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"airtable-mcp-go/internal/session"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	Long: `Serve MCP as newline-delimited JSON-RPC on stdin and stdout, the transport
desktop agents launch servers with. Logs go to stderr only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(os.Stderr)
		if err != nil {
			return err
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

		err = st.mcpServer().ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}
