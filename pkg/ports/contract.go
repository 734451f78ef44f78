package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	key := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState(key, "welcome")
		state.Mode = domain.ModeAwaitingInput
		state.CurrentNodeID = "ask-email"
		state.Variables["name"] = "Ana"
		state.Timeline = append(state.Timeline,
			domain.TimelineEvent{ID: "e1", Origin: domain.OriginBot, Content: "Hi", Timestamp: time.Unix(1700000000, 0).UTC()},
			domain.TimelineEvent{ID: "e2", Origin: domain.OriginBot, Content: "Email?", NodeID: "ask-email",
				Prompt: &domain.InputPrompt{NodeID: "ask-email", InputType: domain.InputEmail, Variable: "email"}},
		)

		require.NoError(t, store.Save(ctx, key, state), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Mode, loaded.Mode)
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, "Ana", loaded.Variables["name"])
		require.Len(t, loaded.Timeline, 2)
		assert.True(t, state.Timeline[0].Timestamp.Equal(loaded.Timeline[0].Timestamp))
		require.NotNil(t, loaded.Timeline[1].Prompt)
		assert.Equal(t, domain.InputEmail, loaded.Timeline[1].Prompt.InputType)

		prompt, ok := loaded.ActivePrompt()
		assert.True(t, ok)
		assert.Equal(t, "email", prompt.Variable)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.NewSessionState(key, "welcome")))
		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, key), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := key + "-1"
		id2 := key + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewSessionState(id1, "welcome")))
		require.NoError(t, store.Save(ctx, id2, domain.NewSessionState(id2, "welcome")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, id1)
		assert.Contains(t, keys, id2)
	})
}

// RunFlowLoaderContract verifies a FlowLoader against the flows it was seeded with.
func RunFlowLoaderContract(t *testing.T, loader FlowLoader, seeded ...string) {
	ctx := context.Background()

	t.Run("Load", func(t *testing.T) {
		for _, id := range seeded {
			def, err := loader.Load(ctx, id)
			require.NoError(t, err, "loading %s", id)
			assert.Equal(t, id, def.ID)
		}
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := loader.Load(ctx, "non-existent-flow")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := loader.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, seeded, ids)
	})
}
