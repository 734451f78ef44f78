package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer formats timeline events for a terminal chat. It is safe for
// concurrent use; each call writes its lines without interleaving.
// Bot text goes through glamour when the output is a terminal; otherwise it
// is written as plain text so transcripts stay diffable.
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	out      *termenv.Output
	markdown *glamour.TermRenderer
}

// NewRenderer returns a Renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	r := &Renderer{w: w, out: termenv.NewOutput(w)}
	if isTerminal(w) {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Event writes one timeline bubble.
func (r *Renderer) Event(e domain.TimelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case e.Origin == domain.OriginUser:
		fmt.Fprintln(r.w, r.out.String("you › "+e.Content).Faint())
	case e.Prompt != nil:
		r.prompt(e.Prompt)
	case e.Media != nil:
		r.media(e)
	default:
		fmt.Fprint(r.w, r.text(e.Content))
	}
}

// Typing shows the typing indicator.
func (r *Renderer) Typing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.out.String("…").Faint().Italic())
}

// Notice writes a status line that is not part of the conversation.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.out.String(">>> "+fmt.Sprintf(format, args...)).Foreground(r.out.Color("#818cf8")))
}

// Error writes a rejected action.
func (r *Renderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, r.out.String("!! "+err.Error()).Foreground(r.out.Color("#fb7185")))
}

func (r *Renderer) text(content string) string {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(content); err == nil {
			return rendered
		}
	}
	return content + "\n"
}

func (r *Renderer) media(e domain.TimelineEvent) {
	label := fmt.Sprintf("[%s] %s", e.Media.MediaType, e.Media.URL)
	fmt.Fprintln(r.w, r.out.String(label).Underline())
	if e.Media.Caption != "" {
		fmt.Fprint(r.w, r.text(e.Media.Caption))
	}
}

func (r *Renderer) prompt(p *domain.InputPrompt) {
	var sb strings.Builder
	sb.WriteString(p.Label)
	if p.Required {
		sb.WriteString(" *")
	}
	fmt.Fprintln(r.w, r.out.String(sb.String()).Bold())

	hint := string(p.InputType)
	if p.Placeholder != "" {
		hint += ", e.g. " + p.Placeholder
	}
	fmt.Fprintln(r.w, r.out.String("("+hint+")").Faint())
	for i, opt := range p.Options {
		fmt.Fprintf(r.w, "  %d. %s\n", i+1, opt)
	}
}
