package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// NodeType identifies the behavior contract of a node.
type NodeType string

const (
	// NodeTypeStart opens the conversation. Exactly one per flow.
	NodeTypeStart NodeType = "start"
	// NodeTypeMessage shows a bot text bubble.
	NodeTypeMessage NodeType = "message"
	// NodeTypeMedia shows an image, video or audio bubble.
	NodeTypeMedia NodeType = "media"
	// NodeTypeDelay pauses the conversation, optionally showing the typing indicator.
	NodeTypeDelay NodeType = "delay"
	// NodeTypeInput renders a form field and suspends until the visitor submits it.
	NodeTypeInput NodeType = "input"
	// NodeTypeEnd closes the conversation.
	NodeTypeEnd NodeType = "end"
)

// MediaType is the kind of media carried by a Media node.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// InputType is the kind of form field rendered by an Input node.
type InputType string

const (
	InputText   InputType = "text"
	InputEmail  InputType = "email"
	InputPhone  InputType = "phone"
	InputNumber InputType = "number"
	InputSelect InputType = "select"
)

// NodeData is the type-specific payload of a FlowNode.
// The set of implementations is closed: one struct per NodeType.
type NodeData interface {
	NodeType() NodeType
}

// StartData configures the Start node.
type StartData struct {
	WelcomeMessage     string `json:"welcomeMessage,omitempty"`
	WaitForInteraction bool   `json:"waitForInteraction"`
	Avatar             string `json:"avatar,omitempty"`
	AvatarName         string `json:"avatarName,omitempty"`
	ShowStartButton    bool   `json:"showStartButton"`
}

// MessageData configures a Message node.
type MessageData struct {
	Content            string `json:"content"`
	WaitForInteraction bool   `json:"waitForInteraction"`
}

// MediaData configures a Media node.
type MediaData struct {
	MediaType          MediaType `json:"mediaType"`
	MediaURL           string    `json:"mediaUrl"`
	Caption            string    `json:"caption,omitempty"`
	AutoPlay           bool      `json:"autoPlay"`
	Controls           bool      `json:"controls"`
	WaitForInteraction bool      `json:"waitForInteraction"`
}

// DelayData configures a Delay node. DurationMs is author supplied and unbounded.
type DelayData struct {
	DurationMs int64 `json:"durationMs"`
	ShowTyping bool  `json:"showTyping"`
}

// maxDelayMs is the longest pause a time.Duration can hold, in milliseconds.
const maxDelayMs = math.MaxInt64 / int64(time.Millisecond)

// Duration returns the pause length. Negative values count as zero and
// values beyond what a time.Duration holds are clamped.
func (d DelayData) Duration() time.Duration {
	switch {
	case d.DurationMs <= 0:
		return 0
	case d.DurationMs > maxDelayMs:
		return time.Duration(maxDelayMs) * time.Millisecond
	}
	return time.Duration(d.DurationMs) * time.Millisecond
}

// InputData configures an Input node.
type InputData struct {
	Label       string    `json:"label"`
	InputType   InputType `json:"inputType"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
	// Variable is the capture key for the submitted value.
	Variable string   `json:"variable,omitempty"`
	Options  []string `json:"options,omitempty"`
	// DBField is a storage hint forwarded to the lead tracker.
	DBField string `json:"dbField,omitempty"`
}

// EndData configures the End node.
type EndData struct {
	ThankYouMessage   string `json:"thankYouMessage,omitempty"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	ShowRestartButton bool   `json:"showRestartButton"`
	RestartButtonText string `json:"restartButtonText,omitempty"`
}

func (StartData) NodeType() NodeType   { return NodeTypeStart }
func (MessageData) NodeType() NodeType { return NodeTypeMessage }
func (MediaData) NodeType() NodeType   { return NodeTypeMedia }
func (DelayData) NodeType() NodeType   { return NodeTypeDelay }
func (InputData) NodeType() NodeType   { return NodeTypeInput }
func (EndData) NodeType() NodeType     { return NodeTypeEnd }

// FlowNode is a single step of a flow.
type FlowNode struct {
	ID   string
	Type NodeType
	Data NodeData
}

// NewNode builds a node whose type is derived from its payload.
func NewNode(id string, data NodeData) FlowNode {
	return FlowNode{ID: id, Type: data.NodeType(), Data: data}
}

type wireNode struct {
	NodeID   string         `json:"nodeId"`
	NodeType NodeType       `json:"nodeType"`
	Data     map[string]any `json:"data"`
}

// MarshalJSON writes the editor wire format: {"nodeId","nodeType","data"}.
func (n FlowNode) MarshalJSON() ([]byte, error) {
	var data any = n.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(struct {
		NodeID   string   `json:"nodeId"`
		NodeType NodeType `json:"nodeType"`
		Data     any      `json:"data"`
	}{n.ID, n.Type, data})
}

// UnmarshalJSON reads the editor wire format, applying payload defaults.
func (n *FlowNode) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	node, err := DecodeNode(w.NodeID, w.NodeType, w.Data)
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// String implements fmt.Stringer.
func (n FlowNode) String() string {
	return fmt.Sprintf("%s(%s)", n.Type, n.ID)
}
