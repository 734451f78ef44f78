package runtime

import (
	"context"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// tracking reports whether a lead record may be opened for this session.
func (s *Session) tracking() bool {
	return s.engine.tracker != nil && s.engine.def.IsPublished && !s.state.Preview
}

// createLead opens the lead record once per session, before the Start node runs.
func (s *Session) createLead() {
	if !s.tracking() || s.state.LeadCreated {
		return
	}
	req := ports.LeadSession{
		SessionID: s.state.SessionID,
		FlowID:    s.state.FlowID,
		IPAddress: s.opts.IPAddress,
		UserAgent: s.opts.UserAgent,
	}

	var leadID string
	err := s.callLead(domain.LeadCreateSession, func(ctx context.Context) error {
		var err error
		leadID, err = s.engine.tracker.CreateSession(ctx, req)
		return err
	})
	if err != nil {
		return
	}
	s.state.LeadCreated = true
	s.state.LeadID = leadID
	s.markDirty()
}

func (s *Session) captureField(nodeID string, data domain.InputData, value string) {
	if s.engine.tracker == nil {
		return
	}
	f := ports.FieldCapture{
		SessionID: s.state.SessionID,
		FlowID:    s.state.FlowID,
		NodeID:    nodeID,
		Variable:  data.Variable,
		InputType: data.InputType,
		DBField:   data.DBField,
		Value:     value,
	}
	_ = s.callLead(domain.LeadCaptureField, func(ctx context.Context) error {
		return s.engine.tracker.CaptureField(ctx, f)
	})
}

func (s *Session) completeLead() {
	if s.engine.tracker == nil {
		return
	}
	sessionID := s.state.SessionID
	_ = s.callLead(domain.LeadCompleteSession, func(ctx context.Context) error {
		return s.engine.tracker.CompleteSession(ctx, sessionID)
	})
}

// callLead runs one Lead-Tracking Boundary call. Failures are logged and
// reported to OnLeadCall; the conversation never sees them.
func (s *Session) callLead(op domain.LeadOperation, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.engine.leadTimeout)
	defer cancel()

	started := time.Now()
	err := call(ctx)
	elapsed := time.Since(started)

	if err != nil {
		s.logger.Warn("lead tracking failed", "session_id", s.state.SessionID, "operation", op, "err", err)
	}
	if s.hooks.OnLeadCall != nil {
		s.hooks.OnLeadCall(s.ctx, &domain.LeadEvent{
			EventBase: s.eventBase(domain.EventLeadCall),
			Operation: op,
			Duration:  elapsed,
			Err:       err,
		})
	}
	return err
}
