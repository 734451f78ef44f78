package dsl

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/validator"
)

// Builder manages the flow construction.
type Builder struct {
	flow  domain.Flow
	order []*NodeBuilder
	nodes map[string]*NodeBuilder
	last  *NodeBuilder
	seq   map[domain.NodeType]int
	errs  []error
}

// New creates a new flow builder. Flows are published by default.
func New(flowID string) *Builder {
	return &Builder{
		flow:  domain.Flow{ID: flowID, FlowName: flowID, IsPublished: true},
		nodes: make(map[string]*NodeBuilder),
		seq:   make(map[domain.NodeType]int),
	}
}

// Name sets the display name of the flow.
func (b *Builder) Name(name string) *Builder {
	b.flow.FlowName = name
	return b
}

// Description sets the flow description.
func (b *Builder) Description(desc string) *Builder {
	b.flow.Description = desc
	return b
}

// Colors sets the theme colors.
func (b *Builder) Colors(primary, background string) *Builder {
	b.flow.PrimaryColor = primary
	b.flow.BackgroundColor = background
	return b
}

// Draft marks the flow as unpublished; draft runs never open lead records.
func (b *Builder) Draft() *Builder {
	b.flow.IsPublished = false
	return b
}

// Add creates a node with an explicit id and payload, outside the automatic
// sequence. Link it with Go.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string, data domain.NodeData) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{builder: b, node: domain.NewNode(id, data)}
	b.nodes[id] = nb
	b.order = append(b.order, nb)
	return nb
}

// append adds a node to the automatic sequence: the previous sequenced node
// links to it unless that node already has an explicit edge.
func (b *Builder) append(id string, data domain.NodeData) *NodeBuilder {
	if id == "" {
		b.seq[data.NodeType()]++
		id = fmt.Sprintf("%s-%d", data.NodeType(), b.seq[data.NodeType()])
		if data.NodeType() == domain.NodeTypeStart && b.seq[domain.NodeTypeStart] == 1 {
			id = "start"
		}
	}
	if _, dup := b.nodes[id]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node id '%s'", id))
		return &NodeBuilder{builder: b, node: domain.NewNode(id, data)}
	}

	nb := b.Add(id, data)
	if b.last != nil && !b.last.linked && !b.last.terminal {
		b.last.next = id
		b.last.linked = true
	}
	b.last = nb
	return nb
}

// Start appends the Start node. It waits for interaction by default.
func (b *Builder) Start() *NodeBuilder {
	return b.append("", domain.StartData{WaitForInteraction: true})
}

// Message appends a text bubble. It waits for interaction by default.
func (b *Builder) Message(content string) *NodeBuilder {
	return b.append("", domain.MessageData{Content: content, WaitForInteraction: true})
}

// Media appends a media bubble. It waits for interaction by default, like a
// decoded media node.
func (b *Builder) Media(mediaType domain.MediaType, url string) *NodeBuilder {
	return b.append("", domain.MediaData{MediaType: mediaType, MediaURL: url, Controls: true, WaitForInteraction: true})
}

// Delay appends a pause with the typing indicator up.
func (b *Builder) Delay(d time.Duration) *NodeBuilder {
	return b.append("", domain.DelayData{DurationMs: d.Milliseconds(), ShowTyping: true})
}

// Input appends a form. The id is what hosts pass to SubmitInput.
func (b *Builder) Input(id string, inputType domain.InputType) *NodeBuilder {
	return b.append(id, domain.InputData{InputType: inputType})
}

// End appends the End node.
func (b *Builder) End(thankYou string) *NodeBuilder {
	return b.append("", domain.EndData{ThankYouMessage: thankYou, ShowRestartButton: true})
}

// Definition assembles the flow without validating it.
func (b *Builder) Definition() (*domain.Definition, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	def := &domain.Definition{Flow: b.flow}
	for _, nb := range b.order {
		def.Nodes = append(def.Nodes, nb.node)
		if nb.next != "" {
			def.Edges = append(def.Edges, domain.FlowEdge{SourceNodeID: nb.node.ID, TargetNodeID: nb.next})
		}
	}
	return def, nil
}

// Build assembles the flow and rejects it when validation reports errors.
// Warnings such as a dangling edge are allowed.
func (b *Builder) Build() (*domain.Definition, error) {
	def, err := b.Definition()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(def).Err(); err != nil {
		return nil, err
	}
	return def, nil
}

// BuildLoader compiles the flow into a memory loader.
func (b *Builder) BuildLoader() (*memory.Loader, error) {
	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewLoader(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
