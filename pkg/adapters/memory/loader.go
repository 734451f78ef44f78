package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/flowchat/pkg/domain"
)

// Loader implements ports.FlowLoader using an in-memory map.
// Safe for concurrent use.
type Loader struct {
	mu    sync.RWMutex
	flows map[string]*domain.Definition
}

// NewLoader creates a loader serving the given definitions.
func NewLoader(defs ...*domain.Definition) (*Loader, error) {
	l := &Loader{flows: make(map[string]*domain.Definition, len(defs))}
	for _, d := range defs {
		if err := l.Put(d); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewFromJSON creates a loader from flow documents in the editor's JSON export format.
// This handles deserialization automatically, improving DX for tests.
func NewFromJSON(docs ...string) (*Loader, error) {
	defs := make([]*domain.Definition, 0, len(docs))
	for i, doc := range docs {
		var d domain.Definition
		if err := json.Unmarshal([]byte(doc), &d); err != nil {
			return nil, fmt.Errorf("failed to decode flow #%d: %w", i, err)
		}
		defs = append(defs, &d)
	}
	return NewLoader(defs...)
}

// Put adds or replaces a definition.
func (l *Loader) Put(d *domain.Definition) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("flow missing ID")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flows[d.ID] = d
	return nil
}

// Load returns the definition of flowID.
func (l *Loader) Load(_ context.Context, flowID string) (*domain.Definition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return d, nil
}

// List returns all flow ids.
func (l *Loader) List(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.flows))
	for k := range l.flows {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
