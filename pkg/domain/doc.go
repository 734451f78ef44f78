/*
Package domain contains the core domain models of the flowchat engine.

It defines the static flow definition (Flow, FlowNode, FlowEdge), the typed
node payloads, and the per-visitor SessionState with its append-only timeline.
This package is kept free of I/O and persistence concerns.

# Key Entities

  - Definition: Flow metadata plus the node/edge graph, shared read-only by all sessions.
  - NodeData: Closed sum type of node payloads (Start, Message, Media, Delay, Input, End).
  - SessionState: Runtime snapshot of one visitor (Mode, current node, timeline, variables).
  - TimelineEvent: A chat bubble; input forms carry an InputPrompt.
  - StateDiff: Incremental update between two snapshots for streaming clients.
*/
package domain
