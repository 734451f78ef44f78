package leads

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/aretw0/flowchat/pkg/ports"
)

// Lead is what a Recorder knows about one visitor session.
type Lead struct {
	ID        string
	Session   ports.LeadSession
	Fields    map[string]string
	Completed bool
}

// Recorder is an in-memory ports.LeadTracker.
type Recorder struct {
	mu    sync.Mutex
	seq   int
	leads map[string]*Lead
}

var _ ports.LeadTracker = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{leads: make(map[string]*Lead)}
}

func (r *Recorder) CreateSession(_ context.Context, s ports.LeadSession) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[s.SessionID]; ok {
		return "", fmt.Errorf("lead for session %s already exists", s.SessionID)
	}
	r.seq++
	lead := &Lead{ID: fmt.Sprintf("lead-%d", r.seq), Session: s, Fields: make(map[string]string)}
	r.leads[s.SessionID] = lead
	return lead.ID, nil
}

// CaptureField stores the value under DBField, falling back to Variable.
func (r *Recorder) CaptureField(_ context.Context, c ports.FieldCapture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[c.SessionID]
	if !ok {
		return fmt.Errorf("no lead for session %s", c.SessionID)
	}
	key := c.DBField
	if key == "" {
		key = c.Variable
	}
	lead.Fields[key] = c.Value
	return nil
}

func (r *Recorder) CompleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[sessionID]
	if !ok {
		return fmt.Errorf("no lead for session %s", sessionID)
	}
	lead.Completed = true
	return nil
}

// Lead returns a copy of the lead for sessionID.
func (r *Recorder) Lead(sessionID string) (Lead, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[sessionID]
	if !ok {
		return Lead{}, false
	}
	cp := *lead
	cp.Fields = maps.Clone(lead.Fields)
	return cp, true
}

// Leads returns copies of every lead, ordered by lead id.
func (r *Recorder) Leads() []Lead {
	r.mu.Lock()
	out := make([]Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		cp := *lead
		cp.Fields = maps.Clone(lead.Fields)
		out = append(out, cp)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].ID) != len(out[j].ID) {
			return len(out[i].ID) < len(out[j].ID)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
