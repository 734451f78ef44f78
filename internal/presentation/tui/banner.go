package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ASCII art banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"   __ _               _           _   ", "#818cf8"},
		{"  / _| | _____      _| |__   __ _| |_ ", "#a78bfa"},
		{" | |_| |/ _ \\ \\ /\\ / / '_ \\ / _` | __|", "#c084fc"},
		{" |  _| | (_) \\ V  V / | | | (_| | |_ ", "#e879f9"},
		{" |_| |_|\\___/ \\_/\\_/|_| |_|\\__,_|\\__|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(" v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
