package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aretw0/flowchat/pkg/adapters/sqlstore"
	"github.com/spf13/cobra"
)

var leadsCmd = &cobra.Command{
	Use:   "leads <flow-id>",
	Short: "List the leads recorded for a flow",
	Long:  `Reads the lead database (FLOWCHAT_DB_DRIVER, FLOWCHAT_DB_DSN) and prints one row per visitor session.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return errors.New("FLOWCHAT_DB_DSN is not set")
		}

		store, err := sqlstore.Open(cmd.Context(), cfg.Dialect(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.Leads(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LEAD\tSESSION\tCREATED\tCOMPLETED\tFIELDS")
		for _, id := range ids {
			lead, err := store.Lead(cmd.Context(), id)
			if err != nil {
				return err
			}
			completed := "-"
			if lead.CompletedAt != nil {
				completed = lead.CompletedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				lead.ID, lead.SessionID, lead.CreatedAt.Format(time.RFC3339), completed, formatFields(lead.Fields))
		}
		return w.Flush()
	},
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(leadsCmd)
}
