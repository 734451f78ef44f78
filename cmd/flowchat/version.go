package main

import (
	"encoding/json"
	"fmt"
	"io"
	goruntime "runtime"
	"runtime/debug"
	"strings"

	"github.com/aretw0/flowchat"
	"github.com/spf13/cobra"
)

type buildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:   strings.TrimSpace(flowchat.Version),
		GoVersion: goruntime.Version(),
		Platform:  goruntime.GOOS + "/" + goruntime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
			if len(info.Commit) > 12 {
				info.Commit = info.Commit[:12]
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (b buildInfo) print(w io.Writer) {
	fmt.Fprintf(w, "flowchat version %s\n", b.Version)
	fmt.Fprintf(w, "  go:       %s\n", b.GoVersion)
	fmt.Fprintf(w, "  platform: %s\n", b.Platform)
	if b.Commit != "" {
		suffix := ""
		if b.Modified {
			suffix = " (modified)"
		}
		fmt.Fprintf(w, "  commit:   %s%s\n", b.Commit, suffix)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version and build details",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := readBuildInfo()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		info.print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "print the build details as JSON")
}
