package runtime

import "github.com/aretw0/flowchat/pkg/domain"

func (s *Session) eventBase(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: s.engine.clock.Now(),
		Type:      t,
		SessionID: s.state.SessionID,
		FlowID:    s.state.FlowID,
	}
}

func (s *Session) emitNodeEnter(node domain.FlowNode) {
	if s.hooks.OnNodeEnter == nil {
		return
	}
	s.hooks.OnNodeEnter(s.ctx, &domain.NodeEvent{
		EventBase: s.eventBase(domain.EventNodeEnter),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})
}

func (s *Session) emitNodeLeave(node domain.FlowNode) {
	if s.hooks.OnNodeLeave == nil {
		return
	}
	s.hooks.OnNodeLeave(s.ctx, &domain.NodeEvent{
		EventBase: s.eventBase(domain.EventNodeLeave),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})
}

func (s *Session) emitMessage(e domain.TimelineEvent) {
	if s.hooks.OnMessage == nil {
		return
	}
	s.hooks.OnMessage(s.ctx, &domain.MessageEvent{
		EventBase: s.eventBase(domain.EventMessage),
		Message:   e,
	})
}
