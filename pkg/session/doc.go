/*
Package session hosts many live visitor sessions behind one Manager.

The Manager caches one engine per flow, keeps running sessions in memory,
persists their snapshots to a ports.SnapshotStore in the background, and
fans state diffs out to subscribers through a StreamManager. When a
session is not in memory but its snapshot is, Get restores it, so a
restarted process picks conversations up where they stopped.

Snapshot writes are serialized per session with an in-process lock and,
when configured, a ports.DistributedLocker shared by all replicas.
*/
package session
