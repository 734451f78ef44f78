package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when a loader has no flow with the requested id.
var ErrFlowNotFound = errors.New("flow not found")

// ErrSessionClosed is returned by operations on a disposed session.
var ErrSessionClosed = errors.New("session closed")

// ErrNoActivePrompt is returned when an input is submitted for a node that is not showing a form.
var ErrNoActivePrompt = errors.New("no active input prompt for node")

// ErrPromptSubmitted is returned when a form is submitted a second time.
var ErrPromptSubmitted = errors.New("input prompt already submitted")

// ErrInputTooLarge is returned when visitor text exceeds the engine's size limit.
var ErrInputTooLarge = errors.New("input exceeds maximum allowed size")

// ErrInvalidUTF8 is returned when visitor text is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("input contains invalid UTF-8 sequences")

// FlowConfigurationError reports a flow definition the engine cannot run.
type FlowConfigurationError struct {
	FlowID string
	Reason string
}

func (e *FlowConfigurationError) Error() string {
	return fmt.Sprintf("flow '%s' is misconfigured: %s", e.FlowID, e.Reason)
}

// InputValidationError reports a submitted value rejected by an Input node.
type InputValidationError struct {
	NodeID    string
	InputType InputType
	Reason    string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s input for node '%s': %s", e.InputType, e.NodeID, e.Reason)
}
