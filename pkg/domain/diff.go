package domain

import "reflect"

// StateDiff represents the changes between two session states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"sessionId"`

	Mode          *Mode   `json:"mode,omitempty"`
	CurrentNodeID *string `json:"currentNodeId,omitempty"`
	Typing        *bool   `json:"typing,omitempty"`
	RedirectURL   *string `json:"redirectUrl,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// Deleted keys are present with an empty value.
	Variables map[string]string `json:"capturedVariables,omitempty"`

	// Appended holds events added since the previous state.
	Appended []TimelineEvent `json:"appended,omitempty"`

	// Updated holds already-sent events whose content changed (a prompt got submitted).
	Updated []TimelineEvent `json:"updated,omitempty"`

	// Reset means the timeline was rewritten (restart); Appended then carries all of it.
	Reset bool `json:"reset,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{SessionID: newState.SessionID}

	if oldState == nil || oldState.Mode != newState.Mode {
		diff.Mode = &newState.Mode
	}
	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		diff.CurrentNodeID = &newState.CurrentNodeID
	}
	if oldState == nil || oldState.Typing != newState.Typing {
		diff.Typing = &newState.Typing
	}
	if (oldState == nil && newState.RedirectURL != "") ||
		(oldState != nil && oldState.RedirectURL != newState.RedirectURL) {
		diff.RedirectURL = &newState.RedirectURL
	}

	diff.Variables = diffVariables(oldState, newState)
	diff.Appended, diff.Updated, diff.Reset = diffTimeline(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(old, new *SessionState) map[string]string {
	delta := make(map[string]string)

	if old == nil {
		for k, v := range new.Variables {
			delta[k] = v
		}
	} else {
		for k, v := range new.Variables {
			if prev, ok := old.Variables[k]; !ok || prev != v {
				delta[k] = v
			}
		}
		for k := range old.Variables {
			if _, ok := new.Variables[k]; !ok {
				delta[k] = ""
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffTimeline assumes append-only history; a shorter or rewritten prefix is a reset.
func diffTimeline(old, new *SessionState) (appended, updated []TimelineEvent, reset bool) {
	if old == nil {
		if len(new.Timeline) == 0 {
			return nil, nil, false
		}
		return new.Timeline, nil, false
	}

	oldLen := len(old.Timeline)
	if len(new.Timeline) < oldLen || (oldLen > 0 && old.Timeline[0].ID != new.Timeline[0].ID) {
		return new.Timeline, nil, true
	}

	for i := 0; i < oldLen; i++ {
		if !reflect.DeepEqual(old.Timeline[i], new.Timeline[i]) {
			updated = append(updated, new.Timeline[i])
		}
	}
	if len(new.Timeline) > oldLen {
		appended = new.Timeline[oldLen:]
	}
	return appended, updated, false
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Mode == nil &&
		d.CurrentNodeID == nil &&
		d.Typing == nil &&
		d.RedirectURL == nil &&
		len(d.Variables) == 0 &&
		len(d.Appended) == 0 &&
		len(d.Updated) == 0 &&
		!d.Reset
}
