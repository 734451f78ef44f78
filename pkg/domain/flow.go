package domain

import "encoding/json"

// Flow is the metadata of an authored conversation script.
type Flow struct {
	ID              string `json:"id" yaml:"id"`
	FlowName        string `json:"flowName" yaml:"flowName"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	PrimaryColor    string `json:"primaryColor,omitempty" yaml:"primaryColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	IsPublished     bool   `json:"isPublished" yaml:"isPublished"`
}

// FlowEdge links a node to the next one in traversal order.
type FlowEdge struct {
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
}

// UnmarshalJSON also accepts the "source"/"target" keys written by graph editors.
func (e *FlowEdge) UnmarshalJSON(b []byte) error {
	var w struct {
		SourceNodeID string `json:"sourceNodeId"`
		TargetNodeID string `json:"targetNodeId"`
		Source       string `json:"source"`
		Target       string `json:"target"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.SourceNodeID = w.SourceNodeID
	if e.SourceNodeID == "" {
		e.SourceNodeID = w.Source
	}
	e.TargetNodeID = w.TargetNodeID
	if e.TargetNodeID == "" {
		e.TargetNodeID = w.Target
	}
	return nil
}

// Definition is the immutable input of the engine: metadata plus graph.
// It is loaded once and shared read-only by every session of the flow.
type Definition struct {
	Flow
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// StartNode returns the first node of type Start.
func (d *Definition) StartNode() (FlowNode, bool) {
	for _, n := range d.Nodes {
		if n.Type == NodeTypeStart {
			return n, true
		}
	}
	return FlowNode{}, false
}

// Node looks a node up by id.
func (d *Definition) Node(id string) (FlowNode, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return FlowNode{}, false
}
