/*
Package ports defines the driven ports (interfaces) of the flowchat engine.

These interfaces decouple the conversation runtime from storage, lead tracking,
and the host page, so the same engine runs in a terminal, behind HTTP, or inside
an MCP server.

# Key Interfaces

  - FlowLoader: resolves a flow Definition by id (memory, files, a CMS).
  - LeadTracker: the Lead-Tracking Boundary. Creates and enriches lead records.
  - SnapshotStore: persists session state so sessions survive a restart.
  - DistributedLocker: coordinates access to one session across replicas.
  - Navigator and MediaResolver: host page hooks used by End and Media nodes.
*/
package ports
