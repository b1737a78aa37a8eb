package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// EnvPrefix prefixes the environment variables carrying tool arguments.
const EnvPrefix = "MINDGRAPH_ARG_"

// Tool runs an allow-listed local command. Arguments are never passed as
// command-line flags; each one becomes an environment variable
// MINDGRAPH_ARG_<KEY>. Stdout is the tool result.
type Tool struct {
	cfg    Config
	params json.RawMessage
}

// New builds a tool from its configuration.
func New(cfg Config) (*Tool, error) {
	params := json.RawMessage(`{"type":"object","properties":{}}`)
	if len(cfg.Parameters) > 0 {
		b, err := json.Marshal(cfg.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q: invalid parameters: %w", cfg.Name, err)
		}
		params = b
	}
	return &Tool{cfg: cfg, params: params}, nil
}

// Tools builds every configured tool.
func Tools(cfgs []Config) ([]ports.Tool, error) {
	out := make([]ports.Tool, 0, len(cfgs))
	for _, cfg := range cfgs {
		t, err := New(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (t *Tool) Name() string                { return t.cfg.Name }
func (t *Tool) Description() string         { return t.cfg.Description }
func (t *Tool) Parameters() json.RawMessage { return t.params }

// Invoke runs the command. A non-zero exit is an error carrying stderr.
func (t *Tool) Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error) {
	cmd := exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = append(cmd.Environ(), t.env(args, rc)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (t *Tool) env(args map[string]any, rc domain.RunContext) []string {
	env := make([]string, 0, len(t.cfg.Environment)+len(args)+1)
	keys := make([]string, 0, len(t.cfg.Environment))
	for k := range t.cfg.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+t.cfg.Environment[k])
	}

	for k, v := range args {
		env = append(env, EnvPrefix+envKey(k)+"="+envValue(v))
	}
	if rc.UserID != "" {
		env = append(env, "MINDGRAPH_USER_ID="+rc.UserID)
	}
	return env
}

func envKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, k)
}

// Primitives are formatted as-is, everything else as JSON.
func envValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(v)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
