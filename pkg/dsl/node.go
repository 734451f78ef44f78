package dsl

import (
	"fmt"
	"time"

	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
// Modifiers that do not apply to the node type are recorded as build errors.
type NodeBuilder struct {
	node     domain.FlowNode
	builder  *Builder
	next     string
	linked   bool
	terminal bool
}

func (n *NodeBuilder) mismatch(method string) *NodeBuilder {
	n.builder.errs = append(n.builder.errs, fmt.Errorf("node '%s': %s does not apply to %s nodes", n.node.ID, method, n.node.Type))
	return n
}

// Wait makes the node open an interaction gate after its bubble.
func (n *NodeBuilder) Wait() *NodeBuilder { return n.setWait("Wait", true) }

// NoWait makes the node advance on its own.
func (n *NodeBuilder) NoWait() *NodeBuilder { return n.setWait("NoWait", false) }

func (n *NodeBuilder) setWait(method string, wait bool) *NodeBuilder {
	switch d := n.node.Data.(type) {
	case domain.StartData:
		d.WaitForInteraction = wait
		n.node.Data = d
	case domain.MessageData:
		d.WaitForInteraction = wait
		n.node.Data = d
	case domain.MediaData:
		d.WaitForInteraction = wait
		n.node.Data = d
	default:
		return n.mismatch(method)
	}
	return n
}

// Welcome sets the welcome message of the Start node.
func (n *NodeBuilder) Welcome(text string) *NodeBuilder {
	d, ok := n.node.Data.(domain.StartData)
	if !ok {
		return n.mismatch("Welcome")
	}
	d.WelcomeMessage = text
	n.node.Data = d
	return n
}

// Avatar sets the bot avatar shown by the Start node.
func (n *NodeBuilder) Avatar(url, name string) *NodeBuilder {
	d, ok := n.node.Data.(domain.StartData)
	if !ok {
		return n.mismatch("Avatar")
	}
	d.Avatar, d.AvatarName = url, name
	n.node.Data = d
	return n
}

// StartButton makes the visitor click to begin instead of auto-starting.
func (n *NodeBuilder) StartButton() *NodeBuilder {
	d, ok := n.node.Data.(domain.StartData)
	if !ok {
		return n.mismatch("StartButton")
	}
	d.ShowStartButton = true
	n.node.Data = d
	return n
}

// Caption sets the media caption.
func (n *NodeBuilder) Caption(text string) *NodeBuilder {
	d, ok := n.node.Data.(domain.MediaData)
	if !ok {
		return n.mismatch("Caption")
	}
	d.Caption = text
	n.node.Data = d
	return n
}

// AutoPlay starts video and audio without a click.
func (n *NodeBuilder) AutoPlay() *NodeBuilder {
	d, ok := n.node.Data.(domain.MediaData)
	if !ok {
		return n.mismatch("AutoPlay")
	}
	d.AutoPlay = true
	n.node.Data = d
	return n
}

// Typing toggles the typing indicator during a Delay node.
func (n *NodeBuilder) Typing(on bool) *NodeBuilder {
	d, ok := n.node.Data.(domain.DelayData)
	if !ok {
		return n.mismatch("Typing")
	}
	d.ShowTyping = on
	n.node.Data = d
	return n
}

// For changes the duration of a Delay node.
func (n *NodeBuilder) For(dur time.Duration) *NodeBuilder {
	d, ok := n.node.Data.(domain.DelayData)
	if !ok {
		return n.mismatch("For")
	}
	d.DurationMs = dur.Milliseconds()
	n.node.Data = d
	return n
}

func (n *NodeBuilder) input(method string, fn func(*domain.InputData)) *NodeBuilder {
	d, ok := n.node.Data.(domain.InputData)
	if !ok {
		return n.mismatch(method)
	}
	fn(&d)
	n.node.Data = d
	return n
}

// Label sets the question shown above the form.
func (n *NodeBuilder) Label(text string) *NodeBuilder {
	return n.input("Label", func(d *domain.InputData) { d.Label = text })
}

// Placeholder sets the form placeholder.
func (n *NodeBuilder) Placeholder(text string) *NodeBuilder {
	return n.input("Placeholder", func(d *domain.InputData) { d.Placeholder = text })
}

// Required rejects empty answers.
func (n *NodeBuilder) Required() *NodeBuilder {
	return n.input("Required", func(d *domain.InputData) { d.Required = true })
}

// SaveTo specifies the variable the answer is captured into.
func (n *NodeBuilder) SaveTo(variable string) *NodeBuilder {
	return n.input("SaveTo", func(d *domain.InputData) { d.Variable = variable })
}

// Options sets the choices of a select input.
func (n *NodeBuilder) Options(options ...string) *NodeBuilder {
	return n.input("Options", func(d *domain.InputData) { d.Options = options })
}

// DBField sets the storage hint forwarded to the lead tracker.
func (n *NodeBuilder) DBField(field string) *NodeBuilder {
	return n.input("DBField", func(d *domain.InputData) { d.DBField = field })
}

// Redirect sends the visitor to url after the thank-you message.
func (n *NodeBuilder) Redirect(url string) *NodeBuilder {
	d, ok := n.node.Data.(domain.EndData)
	if !ok {
		return n.mismatch("Redirect")
	}
	d.RedirectURL = url
	n.node.Data = d
	return n
}

// RestartButton sets the restart button label; an empty label hides it.
func (n *NodeBuilder) RestartButton(text string) *NodeBuilder {
	d, ok := n.node.Data.(domain.EndData)
	if !ok {
		return n.mismatch("RestartButton")
	}
	d.RestartButtonText = text
	d.ShowRestartButton = text != ""
	n.node.Data = d
	return n
}

// Go links the node to target, replacing the automatic link.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.next = target
	n.linked = true
	n.terminal = false
	return n
}

// Terminal marks the node as the end of traversal; it gets no outgoing edge.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.next = ""
	n.linked = false
	n.terminal = true
	return n
}

// Node returns the underlying domain.FlowNode.
func (n *NodeBuilder) Node() domain.FlowNode {
	return n.node
}

// The methods below continue the sequence on the parent builder.

func (n *NodeBuilder) Start() *NodeBuilder                 { return n.builder.Start() }
func (n *NodeBuilder) Message(content string) *NodeBuilder { return n.builder.Message(content) }
func (n *NodeBuilder) Delay(d time.Duration) *NodeBuilder  { return n.builder.Delay(d) }
func (n *NodeBuilder) End(thankYou string) *NodeBuilder    { return n.builder.End(thankYou) }

func (n *NodeBuilder) Media(mediaType domain.MediaType, url string) *NodeBuilder {
	return n.builder.Media(mediaType, url)
}

func (n *NodeBuilder) Input(id string, inputType domain.InputType) *NodeBuilder {
	return n.builder.Input(id, inputType)
}

// Build assembles and validates the flow of the parent builder.
func (n *NodeBuilder) Build() (*domain.Definition, error) {
	return n.builder.Build()
}

// Definition assembles the flow of the parent builder without validating it.
func (n *NodeBuilder) Definition() (*domain.Definition, error) {
	return n.builder.Definition()
}

// BuildLoader compiles the flow of the parent builder into a memory loader.
func (n *NodeBuilder) BuildLoader() (*memory.Loader, error) {
	return n.builder.BuildLoader()
}

// Builder returns the parent builder.
func (n *NodeBuilder) Builder() *Builder {
	return n.builder
}
