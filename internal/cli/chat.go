package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/presentation/tui"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// Chat commands typed at the prompt.
const (
	CommandQuit    = "/quit"
	CommandRestart = "/restart"
	CommandState   = "/state"
)

// Chat drives one session from a line-oriented terminal.
type Chat struct {
	session  *flowchat.Session
	renderer *tui.Renderer

	// Touched only from hooks, which run under the session lock.
	typing     bool
	completed  bool
	redirected string
}

// ChatOptions configures NewChat.
type ChatOptions struct {
	Preview bool
	Restart flowchat.RestartPolicy
	// EngineOptions are applied before the chat's own rendering hooks.
	EngineOptions []flowchat.Option
}

// NewChat loads flowID and opens a session that renders to renderer.
func NewChat(ctx context.Context, loader ports.FlowLoader, flowID string, renderer *tui.Renderer, opts ChatOptions) (*Chat, error) {
	c := &Chat{renderer: renderer}

	engineOpts := append([]flowchat.Option{}, opts.EngineOptions...)
	engineOpts = append(engineOpts, flowchat.WithLifecycleHooks(c.hooks()))

	engine, err := flowchat.Load(ctx, loader, flowID, engineOpts...)
	if err != nil {
		return nil, err
	}
	sess, err := engine.Open(ctx, flowchat.SessionOptions{
		Preview:   opts.Preview,
		UserAgent: "flowchat-cli",
		AutoStart: true,
		Restart:   opts.Restart,
	})
	if err != nil {
		return nil, err
	}
	c.session = sess
	return c, nil
}

// Session returns the running session.
func (c *Chat) Session() *flowchat.Session {
	return c.session
}

func (c *Chat) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMessage: func(_ context.Context, e *domain.MessageEvent) {
			if e.Message.Origin == domain.OriginUser {
				return
			}
			c.renderer.Event(e.Message)
		},
		OnStateChange: func(_ context.Context, st *domain.SessionState) {
			if st.Typing && !c.typing {
				c.renderer.Typing()
			}
			c.typing = st.Typing

			done := st.Completed()
			if done && !c.completed {
				c.renderer.Notice("Conversation finished. Type %s to go again or %s to leave.", CommandRestart, CommandQuit)
			}
			c.completed = done

			if st.RedirectURL != "" && st.RedirectURL != c.redirected {
				c.renderer.Notice("Redirecting to %s", st.RedirectURL)
			}
			c.redirected = st.RedirectURL
		},
	}
}

// Start shows the welcome sequence.
func (c *Chat) Start(ctx context.Context) error {
	return c.session.Start(ctx)
}

// Handle processes one typed line. It reports whether the visitor asked to quit.
// Rejected answers are shown to the visitor and do not end the chat.
func (c *Chat) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case CommandQuit:
		return true, nil
	case CommandRestart:
		if err := c.session.Restart(ctx); err != nil {
			return false, err
		}
		return false, c.session.Start(ctx)
	case CommandState:
		st := c.session.Snapshot()
		c.renderer.Notice("session %s: %s at %q, %d events", st.SessionID, st.Mode, st.CurrentNodeID, len(st.Timeline))
		return false, nil
	}

	var err error
	if prompt, ok := c.session.Snapshot().ActivePrompt(); ok {
		err = c.session.SubmitInput(ctx, prompt.NodeID, optionValue(prompt, line))
	} else {
		err = c.session.SendFreeText(ctx, line)
	}

	var inputErr *domain.InputValidationError
	switch {
	case errors.As(err, &inputErr):
		c.renderer.Error(fmt.Errorf("%s, try again", inputErr.Reason))
		return false, nil
	case errors.Is(err, domain.ErrInputTooLarge), errors.Is(err, domain.ErrInvalidUTF8):
		c.renderer.Error(err)
		return false, nil
	}
	return false, err
}

// optionValue lets the visitor answer a select prompt by option number.
func optionValue(p *domain.InputPrompt, line string) string {
	if p.InputType != domain.InputSelect {
		return line
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(p.Options) {
		return line
	}
	return p.Options[n-1]
}

// Run starts the session and feeds it lines from in until EOF, /quit or ctx ends.
func (c *Chat) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.session.Close()
	if err := c.Start(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := c.Handle(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}
