package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/mindgraph/pkg/adapters/process"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestTool_PassesArgumentsAsEnv(t *testing.T) {
	skipWithoutShell(t)
	tool, err := process.New(process.Config{
		Name:        "greet",
		Command:     "sh",
		Args:        []string{"-c", `echo "$GREETING $MINDGRAPH_ARG_NAME $MINDGRAPH_ARG_TAGS $MINDGRAPH_USER_ID"`},
		Environment: map[string]string{"GREETING": "hello"},
	})
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"name": "ada",
		"tags": []any{"a", "b"},
	}, domain.RunContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, `hello ada ["a","b"] u1`, out)
}

func TestTool_FailureCarriesStderr(t *testing.T) {
	skipWithoutShell(t)
	tool, err := process.New(process.Config{Name: "fail", Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), nil, domain.RunContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestTool_DefaultParameters(t *testing.T) {
	tool, err := process.New(process.Config{Name: "x", Command: "true"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.Parameters()))
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: word_count
    description: Count words
    command: wc
    args: ["-w"]
    parameters:
      type: object
      properties:
        text: {type: string}
      required: [text]
  - command: ignored-without-name
`), 0o600))

	cfgs, err := process.LoadTools(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "word_count", cfgs[0].Name)

	tools, err := process.Tools(cfgs)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.JSONEq(t, `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`, string(tools[0].Parameters()))
}

func TestLoadTools_Missing(t *testing.T) {
	cfgs, err := process.LoadTools(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfgs)
}

func TestLoadTools_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tools":[{"name":"a"}]}`), 0o600))
	_, err := process.LoadTools(path)
	assert.ErrorContains(t, err, "has no command")
}
