package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
)

// Overlay marks the progress of one session on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFor derives the overlay from a session snapshot.
func OverlayFor(st *domain.SessionState) *Overlay {
	o := &Overlay{CurrentNode: st.CurrentNodeID}
	for _, e := range st.Timeline {
		if e.NodeID != "" {
			o.VisitedNodes = append(o.VisitedNodes, e.NodeID)
		}
	}
	return o
}

// GenerateMermaid renders a flow as a Mermaid flowchart.
// Shapes follow the node type:
//   - Start and End: ((Circle))
//   - Input: [/Parallelogram/]
//   - Delay: {{Hexagon}}
//   - Message and Media: [Rectangle]
func GenerateMermaid(def *domain.Definition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range def.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeTypeStart, domain.NodeTypeEnd:
			opener, closer = "((", "))"
		case domain.NodeTypeInput:
			opener, closer = "[/", "/]"
		case domain.NodeTypeDelay:
			opener, closer = "{{", "}}"
		}

		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(nodeLabel(node)), closer)
	}

	for _, edge := range def.Edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(edge.SourceNodeID), sanitizeMermaidID(edge.TargetNodeID))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// color:#000 keeps labels readable on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] || id == overlay.CurrentNode {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func nodeLabel(node domain.FlowNode) string {
	label := node.ID
	switch d := node.Data.(type) {
	case domain.InputData:
		label = fmt.Sprintf("%s <br/> %s", node.ID, d.InputType)
		if d.Required {
			label += "*"
		}
	case domain.DelayData:
		label = fmt.Sprintf("%s <br/> ⏱️ %s", node.ID, d.Duration())
	case domain.MediaData:
		label = fmt.Sprintf("%s <br/> %s", node.ID, d.MediaType)
	case domain.EndData:
		if d.RedirectURL != "" {
			label = fmt.Sprintf("%s <br/> ↪ redirect", node.ID)
		}
	}
	return label
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
