package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRootCommandForTest(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := buildRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestTurnCommand(t *testing.T) {
	out, err := runRootCommandForTest(t, "turn", "--text", "hello")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "REPLY", results[0]["action"])
	assert.Equal(t, "Hello from the mock backend.", results[0]["text"])
}

func TestTurnCommand_RequiresText(t *testing.T) {
	_, err := runRootCommandForTest(t, "turn")
	assert.Error(t, err)
}

func TestComposeCommand_UsesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cognimesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  name: Ada
settings:
  TIMEZONE: UTC
  API_TOKEN: secret
`), 0o600))

	out, err := runRootCommandForTest(t, "--config", path, "compose", "--text", "hi")
	require.NoError(t, err)

	var state struct {
		Text   string         `json:"text"`
		Values map[string]any `json:"values"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Contains(t, state.Text, "# About Ada")
	assert.Contains(t, state.Text, "- TIMEZONE: UTC")
	assert.NotContains(t, state.Text, "secret")
}

func TestClassifyCommand(t *testing.T) {
	out, err := runRootCommandForTest(t, "classify", "say", "hello")
	require.NoError(t, err)

	var cls map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cls))
	assert.Equal(t, "simple", cls["complexity"])
}

func TestPlanCommand(t *testing.T) {
	out, err := runRootCommandForTest(t, "plan", "say hello")
	require.NoError(t, err)

	var res struct {
		Plan struct {
			Status string `json:"status"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "succeeded", res.Plan.Status)

	_, err = runRootCommandForTest(t, "plan")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runRootCommandForTest(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cognimesh ")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runRootCommandForTest(t, "--log-level", "loud", "version")
	require.NoError(t, err)

	_, err = runRootCommandForTest(t, "--log-level", "loud", "turn", "--text", "hi")
	assert.Error(t, err)
}
