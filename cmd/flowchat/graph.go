package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/pkg/adapters/file"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export the flow graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the flow's nodes and edges.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loader, err := file.NewLoader(cfg.FlowsDir)
		if err != nil {
			return err
		}
		def, err := loader.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.Graph(cmd.OutOrStdout(), def)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
