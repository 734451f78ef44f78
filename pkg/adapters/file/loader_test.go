package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/adapters/file"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const welcomeYAML = `
id: welcome
flowName: Welcome
isPublished: true
nodes:
  - nodeId: start
    nodeType: start
    data:
      waitForInteraction: false
  - nodeId: pause
    nodeType: delay
    data:
      durationMs: 1200
  - nodeId: ask
    nodeType: input
    data:
      label: Pick one
      inputType: select
      variable: choice
      options: [a, b]
edges:
  - source: start
    target: pause
  - sourceNodeId: pause
    targetNodeId: ask
`

const byeJSON = `{
	"flowName": "Bye",
	"nodes": [{"nodeId": "end", "nodeType": "end", "data": {}}],
	"edges": []
}`

func writeFlows(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.yaml"), []byte(welcomeYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bye.json"), []byte(byeJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a flow"), 0o644))
	return dir
}

func TestFileLoader_Contract(t *testing.T) {
	loader, err := file.NewLoader(writeFlows(t))
	require.NoError(t, err)
	ports.RunFlowLoaderContract(t, loader, "welcome", "bye")
}

func TestFileLoader_DecodesYAML(t *testing.T) {
	loader, err := file.NewLoader(writeFlows(t))
	require.NoError(t, err)

	def, err := loader.Load(context.Background(), "welcome")
	require.NoError(t, err)

	assert.True(t, def.IsPublished)
	require.Len(t, def.Nodes, 3)
	assert.Equal(t, domain.StartData{WaitForInteraction: false}, def.Nodes[0].Data)
	assert.Equal(t, domain.DelayData{DurationMs: 1200, ShowTyping: true}, def.Nodes[1].Data)
	assert.Equal(t, domain.InputData{Label: "Pick one", InputType: domain.InputSelect, Variable: "choice", Options: []string{"a", "b"}}, def.Nodes[2].Data)
	assert.Equal(t, []domain.FlowEdge{
		{SourceNodeID: "start", TargetNodeID: "pause"},
		{SourceNodeID: "pause", TargetNodeID: "ask"},
	}, def.Edges)
}

func TestFileLoader_IDFromFileName(t *testing.T) {
	loader, err := file.NewLoader(writeFlows(t))
	require.NoError(t, err)

	def, err := loader.Load(context.Background(), "bye")
	require.NoError(t, err)
	assert.Equal(t, domain.EndData{ShowRestartButton: true}, def.Nodes[0].Data)
}

func TestFileLoader_Errors(t *testing.T) {
	_, err := file.NewLoader(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = file.Parse([]byte(`nodes: [{nodeId: x, nodeType: carousel}]`))
	assert.ErrorContains(t, err, "unknown node type")
}

func TestFileLoader_Watch(t *testing.T) {
	dir := writeFlows(t)
	loader, err := file.NewLoader(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.yaml"), []byte(welcomeYAML+"\ndescription: edited\n"), 0o644))

	select {
	case id := <-changes:
		assert.Equal(t, "welcome", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
