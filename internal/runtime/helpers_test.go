package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

// flushLimit bounds FakeClock.Flush so a broken flow fails instead of hanging.
const flushLimit = 1000

type fakeTracker struct {
	mu        sync.Mutex
	calls     []domain.LeadOperation
	captures  []ports.FieldCapture
	sessions  []ports.LeadSession
	createErr error
}

func (f *fakeTracker) CreateSession(_ context.Context, s ports.LeadSession) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.LeadCreateSession)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.sessions = append(f.sessions, s)
	return fmt.Sprintf("lead-%d", len(f.sessions)), nil
}

func (f *fakeTracker) CaptureField(_ context.Context, c ports.FieldCapture) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.LeadCaptureField)
	f.captures = append(f.captures, c)
	return nil
}

func (f *fakeTracker) CompleteSession(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.LeadCompleteSession)
	return nil
}

func (f *fakeTracker) count(op domain.LeadOperation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

type navCall struct {
	sessionID string
	url       string
}

type fakeNavigator struct {
	calls []navCall
}

func (n *fakeNavigator) Navigate(_ context.Context, sessionID, url string) error {
	n.calls = append(n.calls, navCall{sessionID, url})
	return nil
}

type fakeResolver struct {
	err error
}

func (r fakeResolver) Resolve(_ context.Context, raw string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return raw + "?signed=1", nil
}

var errBackendDown = errors.New("backend down")

// sequentialIDs makes session and event ids predictable.
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newEngine(t *testing.T, def *domain.Definition, opts ...runtime.EngineOption) (*runtime.Engine, *scheduler.FakeClock) {
	t.Helper()
	clock := scheduler.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	all := append([]runtime.EngineOption{runtime.WithClock(clock), runtime.WithIDGenerator(sequentialIDs())}, opts...)
	eng, err := runtime.NewEngine(def, all...)
	require.NoError(t, err)
	return eng, clock
}

func newSession(t *testing.T, eng *runtime.Engine, opts runtime.SessionOptions) *runtime.Session {
	t.Helper()
	s, err := eng.NewSession(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// chain builds a published flow whose nodes are linked in order.
func chain(nodes ...domain.FlowNode) *domain.Definition {
	def := &domain.Definition{
		Flow:  domain.Flow{ID: "test-flow", FlowName: "Test", IsPublished: true},
		Nodes: nodes,
	}
	for i := 0; i+1 < len(nodes); i++ {
		def.Edges = append(def.Edges, domain.FlowEdge{SourceNodeID: nodes[i].ID, TargetNodeID: nodes[i+1].ID})
	}
	return def
}

func start(wait bool, welcome string) domain.FlowNode {
	return domain.NewNode("start", domain.StartData{WelcomeMessage: welcome, WaitForInteraction: wait})
}

func message(id, content string, wait bool) domain.FlowNode {
	return domain.NewNode(id, domain.MessageData{Content: content, WaitForInteraction: wait})
}

func end(id, thanks string) domain.FlowNode {
	return domain.NewNode(id, domain.EndData{ThankYouMessage: thanks, ShowRestartButton: true})
}
