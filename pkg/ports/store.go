package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// SnapshotStore defines the interface for persisting session state.
// Snapshots let a host rebuild the chat after a process restart; timers are not
// persisted, so a restored session resumes at its last gate or prompt.
type SnapshotStore interface {
	// Save persists the state under key.
	Save(ctx context.Context, key string, state *domain.SessionState) error

	// Load retrieves the state stored under key.
	// Returns domain.ErrSessionNotFound if nothing is stored.
	Load(ctx context.Context, key string) (*domain.SessionState, error)

	// Delete removes the state. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all stored keys.
	List(ctx context.Context) ([]string, error)
}
