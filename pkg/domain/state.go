package domain

// Mode is the engine mode of a session.
type Mode string

const (
	// ModeIdle: no node has been entered yet.
	ModeIdle Mode = "idle"
	// ModeActive: a node is running its timers.
	ModeActive Mode = "active"
	// ModeGated: CurrentNodeID is waiting for a free-text message from the visitor.
	ModeGated Mode = "gated"
	// ModeAwaitingInput: CurrentNodeID shows a form and waits for its submission.
	ModeAwaitingInput Mode = "awaiting_input"
	// ModeHalted: traversal stopped at CurrentNodeID because it has no next node.
	ModeHalted Mode = "halted"
	// ModeCompleted: an End node was reached.
	ModeCompleted Mode = "completed"
)

// SessionState is the mutable record of one visitor's run of a flow.
type SessionState struct {
	SessionID     string            `json:"sessionId"`
	FlowID        string            `json:"flowId"`
	Mode          Mode              `json:"mode"`
	CurrentNodeID string            `json:"currentNodeId,omitempty"`
	Timeline      []TimelineEvent   `json:"timeline"`
	Variables     map[string]string `json:"capturedVariables"`
	Typing        bool              `json:"typing"`
	LeadCreated   bool              `json:"leadCreated"`
	LeadID        string            `json:"leadId,omitempty"`
	Preview       bool              `json:"preview"`
	// RedirectURL is set once the End node navigation fires.
	RedirectURL string `json:"redirectUrl,omitempty"`
	// Settings travel with snapshots so a restored session keeps behaving
	// like the one the host opened.
	Settings SessionSettings `json:"settings"`
}

// SessionSettings are the host options a session was opened with.
type SessionSettings struct {
	AutoStart bool `json:"autoStart,omitempty"`
	// RestartPolicy is "keep_lead" or "new_lead".
	RestartPolicy string `json:"restartPolicy,omitempty"`
	IPAddress     string `json:"ipAddress,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
}

// NewSessionState creates an idle state.
func NewSessionState(sessionID, flowID string) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		FlowID:    flowID,
		Mode:      ModeIdle,
		Timeline:  []TimelineEvent{},
		Variables: make(map[string]string),
	}
}

func (s *SessionState) Started() bool   { return s.Mode != ModeIdle }
func (s *SessionState) Completed() bool { return s.Mode == ModeCompleted }

// WaitingForInteraction reports whether an interaction gate is open.
func (s *SessionState) WaitingForInteraction() bool { return s.Mode == ModeGated }

// PendingNodeID is the node holding the open gate, or "".
func (s *SessionState) PendingNodeID() string {
	if s.Mode != ModeGated {
		return ""
	}
	return s.CurrentNodeID
}

// ActivePrompt returns the unsubmitted prompt the visitor can fill, if any.
func (s *SessionState) ActivePrompt() (*InputPrompt, bool) {
	if s.Mode != ModeAwaitingInput {
		return nil, false
	}
	for i := len(s.Timeline) - 1; i >= 0; i-- {
		p := s.Timeline[i].Prompt
		if p != nil && p.NodeID == s.CurrentNodeID && !p.Submitted {
			return p, true
		}
	}
	return nil, false
}

// Transcript lists the content of every bubble except input forms.
func (s *SessionState) Transcript() []string {
	out := make([]string, 0, len(s.Timeline))
	for _, e := range s.Timeline {
		if e.IsPrompt() {
			continue
		}
		out = append(out, e.Content)
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Timeline = make([]TimelineEvent, len(s.Timeline))
	for i, e := range s.Timeline {
		out.Timeline[i] = e.clone()
	}
	out.Variables = make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	return &out
}
