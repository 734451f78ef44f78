package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/flowchat/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves every flow of the flows directory over a JSON API with
server-sent events. Redis, the lead database, AMQP and MinIO are enabled
when their FLOWCHAT_* settings are present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cli.NewLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return cli.Serve(ctx, app)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "address to listen on (overrides FLOWCHAT_ADDR)")
}
