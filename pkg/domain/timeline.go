package domain

import "time"

// Origin tells who produced a timeline event.
type Origin string

const (
	OriginBot  Origin = "bot"
	OriginUser Origin = "user"
)

// MediaAttachment is the media payload of a bot event.
type MediaAttachment struct {
	MediaType MediaType `json:"mediaType"`
	URL       string    `json:"url"`
	Caption   string    `json:"caption,omitempty"`
	AutoPlay  bool      `json:"autoPlay"`
	Controls  bool      `json:"controls"`
}

// InputPrompt is the form attached to the event produced by an Input node.
// Submitted flips to true exactly once.
type InputPrompt struct {
	NodeID      string    `json:"nodeId"`
	Label       string    `json:"label"`
	InputType   InputType `json:"inputType"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
	Variable    string    `json:"variable,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Submitted   bool      `json:"submitted"`
}

// TimelineEvent is one chat bubble. The timeline is append-only and its order
// is what the visitor saw, in the order they saw it.
type TimelineEvent struct {
	ID        string           `json:"id"`
	Origin    Origin           `json:"origin"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"nodeId,omitempty"`
	Media     *MediaAttachment `json:"mediaData,omitempty"`
	Prompt    *InputPrompt     `json:"inputPrompt,omitempty"`
}

// IsPrompt reports whether the event carries an input form.
func (e TimelineEvent) IsPrompt() bool {
	return e.Prompt != nil
}

func (e TimelineEvent) clone() TimelineEvent {
	out := e
	if e.Media != nil {
		m := *e.Media
		out.Media = &m
	}
	if e.Prompt != nil {
		p := *e.Prompt
		p.Options = append([]string(nil), e.Prompt.Options...)
		out.Prompt = &p
	}
	return out
}
