package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"airtable-mcp-go/internal/tools"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := tools.LoadCatalog()
		if err != nil {
			return errors.Wrap(err, "load tool catalog")
		}
		defs := tools.NewCatalogRegistry(catalog).Definitions()

		if toolsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, def := range defs {
			fmt.Fprintf(tw, "%s\t%s\n", def.Name, def.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print full definitions with input schemas")
}
