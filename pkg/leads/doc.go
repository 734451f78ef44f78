// Package leads composes ports.LeadTracker implementations.
//
// Multi fans one lead out to a primary tracker (whose lead id is kept) and
// any number of best-effort secondaries. Recorder keeps leads in memory
// for the terminal runner and tests. Logged wraps a tracker with slog.
package leads
