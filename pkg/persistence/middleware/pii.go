package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// Mask replaces a masked value in stored snapshots.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks captured variables whose name matches one of the
// patterns, together with the visitor's answer bubble for those prompts.
// The live session keeps the real values; a session restored from a masked
// snapshot sees Mask instead.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, key string, state *domain.SessionState) error {
	// Clone so the engine's in-memory state is untouched.
	masked := state.Clone()

	for k := range masked.Variables {
		if m.sensitive(k) {
			masked.Variables[k] = Mask
		}
	}

	sensitiveNodes := make(map[string]bool)
	for _, e := range masked.Timeline {
		if e.Prompt != nil && m.sensitive(e.Prompt.Variable) {
			sensitiveNodes[e.Prompt.NodeID] = true
		}
	}
	for i := range masked.Timeline {
		e := &masked.Timeline[i]
		if e.Origin == domain.OriginUser && sensitiveNodes[e.NodeID] {
			e.Content = Mask
		}
	}

	return m.next.Save(ctx, key, masked)
}

func (m *piiMiddleware) sensitive(name string) bool {
	if name == "" {
		return false
	}
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) Load(ctx context.Context, key string) (*domain.SessionState, error) {
	return m.next.Load(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
