// Package validator performs authoring-time checks on a flow definition.
//
// The runtime is lenient: dangling edges end a conversation and missing texts
// fall back to defaults. The validator reports those situations up front so
// authors can fix them before publishing.
package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
)

// Severity of an Issue.
type Severity string

const (
	// SeverityError marks a definition the engine cannot run as authored.
	SeverityError Severity = "error"
	// SeverityWarning marks a definition that runs but probably not as intended.
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"nodeId,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: node '%s': %s", i.Severity, i.NodeID, i.Message)
}

// Report collects the issues of one definition.
type Report struct {
	FlowID string  `json:"flowId"`
	Issues []Issue `json:"issues"`
}

// HasErrors reports whether any issue is an error.
func (r Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err returns a *domain.FlowConfigurationError listing every error, or nil.
func (r Report) Err() error {
	var msgs []string
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			msgs = append(msgs, i.String())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return &domain.FlowConfigurationError{
		FlowID: r.FlowID,
		Reason: fmt.Sprintf("found %d errors:\n- %s", len(msgs), strings.Join(msgs, "\n- ")),
	}
}

func (r *Report) add(sev Severity, nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// Validate checks def and returns every finding. A nil definition yields a
// single error.
func Validate(def *domain.Definition) Report {
	if def == nil {
		r := Report{}
		r.add(SeverityError, "", "definition is nil")
		return r
	}
	r := Report{FlowID: def.ID}
	if def.ID == "" {
		r.add(SeverityError, "", "flow id is empty")
	}

	nodes := make(map[string]domain.FlowNode, len(def.Nodes))
	starts := 0
	for _, n := range def.Nodes {
		if n.ID == "" {
			r.add(SeverityError, "", "node of type %s has an empty id", n.Type)
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			r.add(SeverityError, n.ID, "duplicate node id")
			continue
		}
		nodes[n.ID] = n
		if n.Type == domain.NodeTypeStart {
			starts++
		}
		checkNode(&r, n)
	}

	switch {
	case starts == 0:
		r.add(SeverityError, "", "flow has no start node")
	case starts > 1:
		r.add(SeverityError, "", "flow has %d start nodes, expected exactly one", starts)
	}

	next := make(map[string]string, len(def.Edges))
	for _, e := range def.Edges {
		if _, ok := nodes[e.SourceNodeID]; !ok {
			r.add(SeverityError, e.SourceNodeID, "edge source does not exist")
			continue
		}
		if _, dup := next[e.SourceNodeID]; dup {
			r.add(SeverityError, e.SourceNodeID, "more than one outgoing edge; only the first is followed")
			continue
		}
		next[e.SourceNodeID] = e.TargetNodeID
		if _, ok := nodes[e.TargetNodeID]; !ok {
			r.add(SeverityWarning, e.SourceNodeID, "edge target '%s' does not exist; the conversation ends here", e.TargetNodeID)
		}
		if n, ok := nodes[e.SourceNodeID]; ok && n.Type == domain.NodeTypeEnd {
			r.add(SeverityWarning, e.SourceNodeID, "end node has an outgoing edge that is never followed")
		}
	}

	if start, ok := def.StartNode(); ok && starts == 1 {
		checkPath(&r, start.ID, nodes, next)
	}
	return r
}

// checkPath walks the chain from the start node. Each node has at most one
// successor, so the walk either ends or revisits a node (a cycle).
func checkPath(r *Report, startID string, nodes map[string]domain.FlowNode, next map[string]string) {
	visited := map[string]bool{}
	current := startID
	reachesEnd := false
	for {
		if visited[current] {
			r.add(SeverityWarning, current, "cycle detected; the conversation loops forever")
			break
		}
		visited[current] = true
		if n, ok := nodes[current]; ok && n.Type == domain.NodeTypeEnd {
			reachesEnd = true
			break
		}
		target, ok := next[current]
		if !ok {
			break
		}
		if _, ok := nodes[target]; !ok {
			break
		}
		current = target
	}

	if !reachesEnd {
		r.add(SeverityWarning, "", "no end node is reachable from the start node")
	}
	for id := range nodes {
		if !visited[id] {
			r.add(SeverityWarning, id, "unreachable from the start node")
		}
	}
}

func checkNode(r *Report, n domain.FlowNode) {
	switch d := n.Data.(type) {
	case nil:
		r.add(SeverityError, n.ID, "node has no data")
	case domain.MessageData:
		if strings.TrimSpace(d.Content) == "" {
			r.add(SeverityWarning, n.ID, "message has no content")
		}
	case domain.MediaData:
		if d.MediaURL == "" {
			r.add(SeverityError, n.ID, "media node has no url")
		}
		switch d.MediaType {
		case domain.MediaImage, domain.MediaVideo, domain.MediaAudio:
		default:
			r.add(SeverityError, n.ID, "unknown media type %q", d.MediaType)
		}
	case domain.DelayData:
		if d.DurationMs < 0 {
			r.add(SeverityWarning, n.ID, "negative delay is treated as zero")
		}
	case domain.InputData:
		if d.Variable == "" {
			r.add(SeverityWarning, n.ID, "input has no variable; the answer is not captured")
		}
		switch d.InputType {
		case domain.InputText, domain.InputEmail, domain.InputPhone, domain.InputNumber:
		case domain.InputSelect:
			if len(d.Options) == 0 {
				r.add(SeverityError, n.ID, "select input has no options")
			}
		default:
			r.add(SeverityError, n.ID, "unknown input type %q", d.InputType)
		}
	case domain.EndData:
		if d.RedirectURL != "" {
			checkRedirect(r, n.ID, d.RedirectURL)
		}
	}
}

func checkRedirect(r *Report, nodeID, raw string) {
	u := raw
	if !strings.Contains(u, "://") {
		u = "https://" + strings.TrimPrefix(u, "//")
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		r.add(SeverityError, nodeID, "redirect url %q is not valid", raw)
	}
}
