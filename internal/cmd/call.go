package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"airtable-mcp-go/internal/mcp"
	"airtable-mcp-go/internal/tools"
)

var (
	callArgs   string
	callParams map[string]string
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke one tool and print its result envelope",
	Example: `  airtable-mcp call airtable_list_records --args '{"table_id_or_name":"Tasks","max_records":10}'
  airtable-mcp call airtable_get_record --param table_id_or_name=Tasks --param record_id=rec123
  airtable-mcp call airtable_get_user_info`,
	Args: cobra.ExactArgs(1),
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

		var res mcp.CallToolResult
		params, f := tools.ParseParams([]byte(callArgs))
		if f != nil {
			res = mcp.RenderFailure(f)
		} else {
			for k, v := range tools.StringParams(callParams) {
				params[k] = v
			}
			res = mcp.Render(st.caller.Dispatch(cmd.Context(), args[0], params))
		}

		out, err := json.MarshalIndent(res.StructuredContent, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if res.IsError {
			return errors.Newf("%s failed: %s", args[0], res.StructuredContent.ErrorKind)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")
	callCmd.Flags().StringToStringVar(&callParams, "param", nil, "string argument as key=value, overriding --args (repeatable)")
}
