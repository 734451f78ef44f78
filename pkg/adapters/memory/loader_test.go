package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const welcomeJSON = `{
	"id": "welcome",
	"flowName": "Welcome",
	"nodes": [
		{"nodeId": "start", "nodeType": "start", "data": {"waitForInteraction": false}},
		{"nodeId": "hi", "nodeType": "message", "data": {"content": "Hi"}}
	],
	"edges": [{"sourceNodeId": "start", "targetNodeId": "hi"}]
}`

func TestMemoryLoader_Contract(t *testing.T) {
	loader, err := memory.NewFromJSON(welcomeJSON, `{"id": "empty"}`)
	require.NoError(t, err)

	ports.RunFlowLoaderContract(t, loader, "welcome", "empty")
}

func TestMemoryLoader_Put(t *testing.T) {
	loader, err := memory.NewLoader()
	require.NoError(t, err)

	assert.Error(t, loader.Put(&domain.Definition{}))
	require.NoError(t, loader.Put(&domain.Definition{Flow: domain.Flow{ID: "a", FlowName: "v1"}}))
	require.NoError(t, loader.Put(&domain.Definition{Flow: domain.Flow{ID: "a", FlowName: "v2"}}))

	def, err := loader.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", def.FlowName)
}

func TestNewFromJSON_Invalid(t *testing.T) {
	_, err := memory.NewFromJSON(`{"id": "x", "nodes": [{"nodeId": "n", "nodeType": "hologram"}]}`)
	assert.Error(t, err)
}
