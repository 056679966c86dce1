// Package cmd implements the airtable-mcp command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string

	v = viper.New()

	// Version info set by main package
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev"}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	if version != "" {
		versionInfo.Version = version
	}
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "airtable-mcp",
	Short: "MCP server exposing the Airtable REST API as tools",
	Long: `airtable-mcp exposes Airtable bases, tables, fields, records and comments
as MCP tools. Requests are throttled per base and retried on transient failures.

Configuration is read from an optional YAML file and from the environment
(AIRTABLE_API_KEY, AIRTABLE_BASE_ID and AIRTABLE_MCP_* overrides).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./airtable-mcp.yaml or ~/.config/airtable-mcp/airtable-mcp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}
