package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/internal/presentation/tui"
	"github.com/aretw0/flowchat/pkg/adapters/file"
	"github.com/aretw0/flowchat/pkg/leads"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <flow-id>",
	Short: "Chat with a flow in the terminal",
	Long: `Runs one session of a flow in the terminal. Type to answer the bot;
/restart starts over, /state shows the session and /quit leaves.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		preview, _ := cmd.Flags().GetBool("preview")
		debug, _ := cmd.Flags().GetBool("debug")

		cfg.LogLevel = "error"
		if debug {
			cfg.LogLevel = "debug"
		}
		logger := cli.NewLogger(cfg)

		loader, err := file.NewLoader(cfg.FlowsDir)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		renderer := tui.NewRenderer(out)
		tui.PrintBanner(out, flowchat.Version)

		recorder := leads.NewRecorder()
		chat, err := cli.NewChat(ctx, loader, args[0], renderer, cli.ChatOptions{
			Preview: preview,
			Restart: cfg.Restart(),
			EngineOptions: []flowchat.Option{
				flowchat.WithLogger(logger),
				flowchat.WithLeadTracker(leads.NewLogged(recorder, logger)),
			},
		})
		if err != nil {
			return err
		}

		if err := chat.Run(ctx, cmd.InOrStdin()); err != nil && ctx.Err() == nil {
			return err
		}
		for _, lead := range recorder.Leads() {
			renderer.Notice("lead %s captured %d fields (completed: %t)", lead.ID, len(lead.Fields), lead.Completed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("preview", false, "author test run: no lead record and no redirect")
	runCmd.Flags().Bool("debug", false, "log engine activity to stderr")
}
