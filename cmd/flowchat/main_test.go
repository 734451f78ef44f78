package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/aretw0/flowchat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloFlow = `{
  "id": "hello",
  "flowName": "Hello",
  "isPublished": true,
  "nodes": [
    {"nodeId": "start", "nodeType": "start", "data": {"welcomeMessage": "Hi"}},
    {"nodeId": "bye", "nodeType": "end", "data": {}}
  ],
  "edges": [{"sourceNodeId": "start", "targetNodeId": "bye"}]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func flowsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.json"), []byte(helloFlow), 0o600))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "flowchat version "+strings.TrimSpace(flowchat.Version), lines[0])
	assert.Equal(t, "  go:       "+runtime.Version(), lines[1])
	assert.Equal(t, "  platform: "+runtime.GOOS+"/"+runtime.GOARCH, lines[2])
}

func TestVersionCommand_JSON(t *testing.T) {
	t.Cleanup(func() { _ = versionCmd.Flags().Set("json", "false") })
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, strings.TrimSpace(flowchat.Version), info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.LessOrEqual(t, len(info.Commit), 12)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", flowsDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "hello: ok")
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--flows", flowsDir(t), "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "start --> bye")
}

func TestRunCommand(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("/quit\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := execute(t, "run", "--flows", flowsDir(t), "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "v"+strings.TrimSpace(flowchat.Version))
}

func TestSessionCommandRequiresRedis(t *testing.T) {
	t.Setenv("FLOWCHAT_REDIS_ADDR", "")
	_, err := execute(t, "session", "ls")
	assert.ErrorContains(t, err, "FLOWCHAT_REDIS_ADDR")
}
