package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/internal/presentation/graph"
	"github.com/aretw0/flowchat/pkg/adapters/file"
	"github.com/aretw0/flowchat/pkg/adapters/redis"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect persisted sessions",
	Long:  `List, inspect, and remove session snapshots stored in Redis (FLOWCHAT_REDIS_ADDR).`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openSnapshots(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		ids, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tFLOW\tMODE\tNODE\tEVENTS")
		for _, id := range ids {
			st, err := store.Load(cmd.Context(), id)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", st.SessionID, st.FlowID, st.Mode, st.CurrentNodeID, len(st.Timeline))
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openSnapshots(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		st, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asGraph, _ := cmd.Flags().GetBool("graph"); asGraph {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			loader, err := file.NewLoader(cfg.FlowsDir)
			if err != nil {
				return err
			}
			def, err := loader.Load(cmd.Context(), st.FlowID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(def, graph.OverlayFor(st)))
			return nil
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Delete session snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openSnapshots(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		var errs []error
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return errors.Join(errs...)
	},
}

// openSnapshots connects to Redis and applies the configured snapshot
// protection, so encrypted sessions are readable here too.
func openSnapshots(cmd *cobra.Command) (ports.SnapshotStore, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, nil, errors.New("FLOWCHAT_REDIS_ADDR is not set")
	}
	store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithTTL(cfg.Redis.SessionTTL))
	if err := store.Ping(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	snapshots, err := cli.ProtectSnapshots(store, cfg.Snapshot)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return snapshots, store.Close, nil
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionShowCmd, sessionRmCmd)
	sessionShowCmd.Flags().Bool("graph", false, "print the flow graph with the session's progress")
}
