package main

import (
	"fmt"
	"os"

	"github.com/aretw0/flowchat/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowchat",
	Short: "flowchat runs scripted chat conversations",
	Long: `flowchat executes conversational flows authored as node graphs: a bot
types messages, shows media, asks for details and records leads.

Settings come from FLOWCHAT_* environment variables and an optional .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to read before the environment")
	rootCmd.PersistentFlags().String("flows", "", "directory of flow files (overrides FLOWCHAT_FLOWS_DIR)")
}

// loadConfig reads the configuration, applying command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("flows"); dir != "" {
		cfg.FlowsDir = dir
	}
	if cmd.Flags().Lookup("addr") != nil && cmd.Flags().Changed("addr") {
		cfg.Addr, _ = cmd.Flags().GetString("addr")
	}
	return cfg, nil
}
