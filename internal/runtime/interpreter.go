package runtime

import (
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/timing"
)

// Fallback texts for nodes authored without content.
const (
	DefaultWelcomeMessage  = "Hi there! Let's get started."
	DefaultThankYouMessage = "Thank you!"
)

// enter makes node current and runs its behavior. Callers hold mu.
func (s *Session) enter(node domain.FlowNode) {
	s.state.CurrentNodeID = node.ID
	s.state.Mode = domain.ModeActive
	s.markDirty()
	s.emitNodeEnter(node)

	switch data := node.Data.(type) {
	case domain.StartData:
		s.enterStart(node, data)
	case domain.MessageData:
		s.enterText(node, data.Content, data.WaitForInteraction)
	case domain.MediaData:
		s.enterMedia(node, data)
	case domain.DelayData:
		s.enterDelay(node, data)
	case domain.InputData:
		s.enterInput(node, data)
	case domain.EndData:
		s.enterEnd(node, data)
	default:
		s.logger.Warn("unknown node data, skipping", "node_id", node.ID, "type", node.Type)
		s.advance(node)
	}
}

func (s *Session) enterStart(node domain.FlowNode, data domain.StartData) {
	content := data.WelcomeMessage
	if content == "" {
		if !data.WaitForInteraction {
			// Nothing to say and nothing to wait for.
			s.advance(node)
			return
		}
		content = DefaultWelcomeMessage
	}
	s.enterText(node, content, data.WaitForInteraction)
}

// enterText is the Start/Message contract: entry delay, typing for the
// length of content, reveal, then gate or advance after the same delay.
func (s *Session) enterText(node domain.FlowNode, content string, wait bool) {
	if content == "" {
		s.gateOrAdvance(node, wait, 0)
		return
	}

	delay := timing.TypingDelay(content)
	s.after(timing.EntryDelay, func() {
		s.setTyping(true)
		s.after(delay, func() {
			s.appendBot(domain.TimelineEvent{NodeID: node.ID, Content: content})
			s.setTyping(false)
			s.gateOrAdvance(node, wait, delay)
		})
	})
}

func (s *Session) enterMedia(node domain.FlowNode, data domain.MediaData) {
	s.setTyping(true)
	s.after(timing.MediaRevealDelay, func() {
		s.appendBot(domain.TimelineEvent{
			NodeID:  node.ID,
			Content: data.Caption,
			Media: &domain.MediaAttachment{
				MediaType: data.MediaType,
				URL:       s.resolveMedia(node.ID, data.MediaURL),
				Caption:   data.Caption,
				AutoPlay:  data.AutoPlay,
				Controls:  data.Controls,
			},
		})
		s.setTyping(false)
		s.gateOrAdvance(node, data.WaitForInteraction, timing.MediaAdvanceDelay)
	})
}

func (s *Session) enterDelay(node domain.FlowNode, data domain.DelayData) {
	if data.ShowTyping {
		s.setTyping(true)
	}
	s.after(data.Duration(), func() {
		s.setTyping(false)
		s.advance(node)
	})
}

// enterInput shows the form and suspends. Only SubmitInput resumes traversal.
func (s *Session) enterInput(node domain.FlowNode, data domain.InputData) {
	s.after(timing.EntryDelay, func() {
		s.appendBot(domain.TimelineEvent{
			NodeID:  node.ID,
			Content: data.Label,
			Prompt: &domain.InputPrompt{
				NodeID:      node.ID,
				Label:       data.Label,
				InputType:   data.InputType,
				Placeholder: data.Placeholder,
				Required:    data.Required,
				Variable:    data.Variable,
				Options:     append([]string(nil), data.Options...),
			},
		})
		s.state.Mode = domain.ModeAwaitingInput
	})
}

func (s *Session) enterEnd(node domain.FlowNode, data domain.EndData) {
	content := data.ThankYouMessage
	if content == "" {
		content = DefaultThankYouMessage
	}

	delay := timing.TypingDelay(content)
	s.after(timing.EntryDelay, func() {
		s.setTyping(true)
		s.after(delay, func() {
			s.appendBot(domain.TimelineEvent{NodeID: node.ID, Content: content})
			s.setTyping(false)
			s.complete(node, data)
		})
	})
}

func (s *Session) complete(node domain.FlowNode, data domain.EndData) {
	s.state.Mode = domain.ModeCompleted
	s.markDirty()
	s.emitNodeLeave(node)

	if s.state.LeadCreated {
		s.completeLead()
	}
	s.scheduleRedirect(data)
}

// gateOrAdvance opens the interaction gate on node, or moves on after delay.
func (s *Session) gateOrAdvance(node domain.FlowNode, wait bool, delay time.Duration) {
	if wait {
		s.state.Mode = domain.ModeGated
		s.markDirty()
		return
	}
	// Always through the scheduler, so an authored cycle of empty nodes loops
	// on timers instead of recursing.
	s.after(delay, func() {
		s.advance(node)
	})
}

// advance leaves from and enters the node after it, or halts when there is none.
func (s *Session) advance(from domain.FlowNode) {
	s.emitNodeLeave(from)
	next, ok := s.engine.Next(from.ID)
	if !ok {
		s.halt()
		return
	}
	s.enter(next)
}

// halt ends traversal at the current node. This is a normal terminal condition.
func (s *Session) halt() {
	s.state.Mode = domain.ModeHalted
	s.state.Typing = false
	s.markDirty()
	s.logger.Debug("traversal halted", "session_id", s.state.SessionID, "node_id", s.state.CurrentNodeID)
}

// resume restarts the work of an active node after a snapshot restore.
// A node whose bubble is already on the timeline only has its advance left.
func (s *Session) resume() {
	switch s.state.Mode {
	case domain.ModeActive:
	case domain.ModeCompleted:
		if s.state.RedirectURL == "" {
			if node, ok := s.engine.Node(s.state.CurrentNodeID); ok {
				if data, ok := node.Data.(domain.EndData); ok {
					s.scheduleRedirect(data)
				}
			}
		}
		return
	default:
		return
	}

	node, ok := s.engine.Node(s.state.CurrentNodeID)
	if !ok {
		s.halt()
		return
	}
	s.state.Typing = false
	s.markDirty()
	if s.revealed(node.ID) {
		s.advance(node)
		return
	}
	s.enter(node)
}

func (s *Session) revealed(nodeID string) bool {
	for i := len(s.state.Timeline) - 1; i >= 0; i-- {
		e := s.state.Timeline[i]
		if e.Origin == domain.OriginBot && e.NodeID == nodeID {
			return true
		}
	}
	return false
}

func (s *Session) setTyping(on bool) {
	if s.state.Typing == on {
		return
	}
	s.state.Typing = on
	s.markDirty()
}

func (s *Session) appendBot(e domain.TimelineEvent) {
	e.Origin = domain.OriginBot
	s.append(e)
}

func (s *Session) appendUser(nodeID, content string) {
	s.append(domain.TimelineEvent{Origin: domain.OriginUser, NodeID: nodeID, Content: content})
}

func (s *Session) append(e domain.TimelineEvent) {
	e.ID = s.engine.newID()
	e.Timestamp = s.engine.clock.Now()
	s.state.Timeline = append(s.state.Timeline, e)
	s.markDirty()
	s.emitMessage(e)
}
