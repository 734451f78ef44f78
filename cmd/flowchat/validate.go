package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check flows for authoring mistakes",
	Long: `Validates a flow file, or every flow of a directory (default: the flows
directory). Reports missing start nodes, dangling edges, unreachable nodes
and invalid node settings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.FlowsDir
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		defs, err := cli.LoadDefinitions(cmd.Context(), path)
		if err != nil {
			return err
		}
		return cli.Validate(cmd.OutOrStdout(), defs, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("json", false, "print the reports as JSON")
}
