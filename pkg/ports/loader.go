package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// FlowLoader defines how the engine retrieves flow definitions.
type FlowLoader interface {
	// Load returns the definition of flowID.
	// Returns domain.ErrFlowNotFound if the flow does not exist.
	Load(ctx context.Context, flowID string) (*domain.Definition, error)

	// List returns the ids of all available flows.
	List(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload in development.
type Watchable interface {
	// Watch returns a channel that receives the id of a flow that changed.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
