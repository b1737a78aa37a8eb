package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mindgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3000, cfg.Chat.TokenBudget)
	assert.Equal(t, 4, cfg.Reflection.MaxGoals)
	assert.Equal(t, 5*time.Minute, cfg.Lease.TTL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
store:
  driver: sqlite
  path: data/mindgraph.db
model:
  provider: anthropic
  name: claude-sonnet
chat:
  token_budget: 2000
tools:
  settings:
    fetch_relevant_thoughts:
      top_k: 3
`)
	t.Setenv("MINDGRAPH_STORE_TTL", "90s")
	t.Setenv("MINDGRAPH_CHAT_TOKEN_BUDGET", "1500")
	t.Setenv("MINDGRAPH_MODEL_BASE_URL", "http://localhost:9999")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/mindgraph.db", cfg.Store.Path)
	assert.Equal(t, 90*time.Second, cfg.Store.TTL)
	assert.Equal(t, 1500, cfg.Chat.TokenBudget)
	assert.Equal(t, "claude-sonnet", cfg.Model.Name)
	assert.Equal(t, "http://localhost:9999", cfg.Model.BaseURL)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Tools.Settings["fetch_relevant_thoughts"]["top_k"])
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
store:
  driver: mongo
lease:
  policy: yolo
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "lease.policy")
}

func TestEncryptionKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	t.Setenv("MINDGRAPH_STORE_ENCRYPTION_KEY", key)
	t.Setenv("MINDGRAPH_STORE_FALLBACK_KEYS", key+","+key)

	cfg, err := config.Load("")
	require.NoError(t, err)

	active, err := cfg.EncryptionKey()
	require.NoError(t, err)
	assert.Len(t, active, 32)

	fallback, err := cfg.FallbackKeys()
	require.NoError(t, err)
	assert.Len(t, fallback, 2)

	t.Setenv("MINDGRAPH_STORE_ENCRYPTION_KEY", "c2hvcnQ=")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "want 32 bytes")
}

func TestDecode_WeakTyping(t *testing.T) {
	var out struct {
		TopK    int           `mapstructure:"top_k"`
		Timeout time.Duration `mapstructure:"timeout"`
	}
	require.NoError(t, config.Decode(map[string]any{"top_k": "7", "timeout": "2s"}, &out))
	assert.Equal(t, 7, out.TopK)
	assert.Equal(t, 2*time.Second, out.Timeout)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in     string
		n      int
		window time.Duration
		err    bool
	}{
		{in: "100 per minute", n: 100, window: time.Minute},
		{in: "30/hour", n: 30, window: time.Hour},
		{in: " 5 per Seconds ", n: 5, window: time.Second},
		{in: "1000 per day", n: 1000, window: 24 * time.Hour},
		{in: ""},
		{in: "many per minute", err: true},
		{in: "0 per minute", err: true},
		{in: "10 per fortnight", err: true},
		{in: "10", err: true},
	}
	for _, tt := range tests {
		n, window, err := config.ParseRate(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.n, n, tt.in)
		assert.Equal(t, tt.window, window, tt.in)
	}
}

func TestLoad_RateLimits(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RATE_LIMIT_CHAT", "10 per minute")
	t.Setenv("MINDGRAPH_RATELIMIT_DELETE", "2/hour")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10 per minute", cfg.RateLimit.Chat)
	assert.Equal(t, "2/hour", cfg.RateLimit.Delete)
	assert.Equal(t, "30 per minute", cfg.RateLimit.History)

	t.Setenv("RATE_LIMIT_SESSION_HISTORY", "lots")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "ratelimit.history")
}
