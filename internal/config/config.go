// Package config loads mindgraph settings from defaults, an optional YAML
// file, a .env file and the environment, in that order.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
// MINDGRAPH_STORE_DRIVER sets store.driver, MINDGRAPH_MODEL_BASE_URL sets model.base_url.
const EnvPrefix = "MINDGRAPH_"

// DefaultFile is read when no explicit path is given and the file exists.
const DefaultFile = "mindgraph.yaml"

type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver is one of memory, file, redis or sqlite.
	Driver        string        `yaml:"driver" mapstructure:"driver"`
	Path          string        `yaml:"path" mapstructure:"path"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	Prefix        string        `yaml:"prefix" mapstructure:"prefix"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	PoolSize      int           `yaml:"pool_size" mapstructure:"pool_size"`

	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key" mapstructure:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
	RedactKeys    []string `yaml:"redact_keys" mapstructure:"redact_keys"`
}

type ModelConfig struct {
	// Provider is one of openai, anthropic or scripted.
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Name      string `yaml:"name" mapstructure:"name"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	PoolSize  int    `yaml:"pool_size" mapstructure:"pool_size"`
}

type ChatConfig struct {
	TokenBudget    int    `yaml:"token_budget" mapstructure:"token_budget"`
	SystemPrompt   string `yaml:"system_prompt" mapstructure:"system_prompt"`
	ToolPoolSize   int    `yaml:"tool_pool_size" mapstructure:"tool_pool_size"`
	StepLimit      int    `yaml:"step_limit" mapstructure:"step_limit"`
	MaxConcurrency int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

type ReflectionConfig struct {
	MaxThemes   int `yaml:"max_themes" mapstructure:"max_themes"`
	MaxEmotions int `yaml:"max_emotions" mapstructure:"max_emotions"`
	MaxGoals    int `yaml:"max_goals" mapstructure:"max_goals"`
}

type LeaseConfig struct {
	// Policy is queue or reject.
	Policy string        `yaml:"policy" mapstructure:"policy"`
	TTL    time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// RateLimitConfig holds one limit per HTTP route, written as "100 per minute"
// or "100/minute". An empty value disables the route's limit.
type RateLimitConfig struct {
	Chat    string `yaml:"chat" mapstructure:"chat"`
	Flow    string `yaml:"flow" mapstructure:"flow"`
	Threads string `yaml:"threads" mapstructure:"threads"`
	History string `yaml:"history" mapstructure:"history"`
	Delete  string `yaml:"delete" mapstructure:"delete"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type ToolsConfig struct {
	// ProcessFile lists external commands exposed as tools.
	ProcessFile string `yaml:"process_file" mapstructure:"process_file"`
	// ThoughtsFile seeds the in-memory thought corpus (YAML or JSON list).
	ThoughtsFile string `yaml:"thoughts_file" mapstructure:"thoughts_file"`
	// Settings holds free-form per-tool settings, decoded by each tool.
	Settings map[string]map[string]any `yaml:"settings" mapstructure:"settings"`
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Chat       ChatConfig       `yaml:"chat" mapstructure:"chat"`
	Reflection ReflectionConfig `yaml:"reflection" mapstructure:"reflection"`
	Lease      LeaseConfig      `yaml:"lease" mapstructure:"lease"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Tools      ToolsConfig      `yaml:"tools" mapstructure:"tools"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second},
		Store: StoreConfig{
			Driver:    "memory",
			RedisAddr: "localhost:6379",
			Prefix:    "mindgraph:",
			PoolSize:  16,
		},
		Model: ModelConfig{
			Provider:  "openai",
			Name:      "gpt-4o-mini",
			MaxTokens: 1024,
			PoolSize:  4,
		},
		Chat:       ChatConfig{TokenBudget: 3000, ToolPoolSize: 8},
		Reflection: ReflectionConfig{MaxThemes: 4, MaxEmotions: 4, MaxGoals: 4},
		Lease:      LeaseConfig{Policy: "queue", TTL: 5 * time.Minute},
		RateLimit: RateLimitConfig{
			Chat:    "100 per minute",
			Flow:    "100 per minute",
			Threads: "30 per minute",
			History: "30 per minute",
			Delete:  "30 per minute",
		},
		Log:        LogConfig{Level: "warning", Format: "console"},
	}
}

// Load builds the configuration. An empty path reads DefaultFile when present;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Existing variables win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.Environ()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(environ []string) error {
	overrides := map[string]any{}
	set := func(section, key, value string) {
		m, ok := overrides[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			overrides[section] = m
		}
		m[key] = value
	}

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch name {
		case "LOG_LEVEL":
			set("log", "level", value)
			continue
		case "LOG_FORMAT":
			set("log", "format", value)
			continue
		}
		if route, ok := rateLimitEnv[name]; ok {
			set("ratelimit", route, value)
			continue
		}
		rest, ok := strings.CutPrefix(name, EnvPrefix)
		if !ok {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(rest), "_")
		if !ok {
			continue
		}
		set(section, key, value)
	}

	// Provider keys are honoured unless a mindgraph-specific key was given.
	model, _ := overrides["model"].(map[string]any)
	if _, overridden := model["api_key"]; c.Model.APIKey == "" && !overridden {
		if key := providerKey(c.Model.Provider, model); key != "" {
			set("model", "api_key", key)
		}
	}

	if len(overrides) == 0 {
		return nil
	}
	return Decode(overrides, c)
}

// rateLimitEnv maps the unprefixed rate limit variables to their routes.
var rateLimitEnv = map[string]string{
	"RATE_LIMIT_CHAT":            "chat",
	"RATE_LIMIT_FLOW":            "flow",
	"RATE_LIMIT_SESSIONS_READ":   "threads",
	"RATE_LIMIT_SESSION_HISTORY": "history",
	"RATE_LIMIT_SESSION_DELETE":  "delete",
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate reads "100 per minute" or "100/minute". An empty string means no
// limit and returns zeros.
func ParseRate(s string) (int, time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, 0, nil
	}
	count, unit, ok := strings.Cut(s, "/")
	if !ok {
		count, unit, ok = strings.Cut(s, " per ")
	}
	if !ok {
		return 0, 0, fmt.Errorf("rate %q: want \"<n> per <unit>\"", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("rate %q: count must be a positive integer", s)
	}
	window, ok := rateUnits[strings.TrimSuffix(strings.TrimSpace(unit), "s")]
	if !ok {
		return 0, 0, fmt.Errorf("rate %q: unknown unit %q", s, unit)
	}
	return n, window, nil
}

func providerKey(provider string, model map[string]any) string {
	if p, ok := model["provider"].(string); ok {
		provider = p
	}
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// Decode copies loosely typed input, such as tool settings or environment
// overrides, onto out. Strings are converted to numbers and durations.
func Decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "file", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Model.Provider {
	case "openai", "anthropic", "scripted":
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}
	switch c.Lease.Policy {
	case "queue", "reject":
	default:
		errs = append(errs, fmt.Errorf("lease.policy: unknown policy %q", c.Lease.Policy))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.FallbackKeys(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.Store.RedactKeys {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store.redact_keys: %w", err))
		}
	}
	for route, rate := range map[string]string{
		"chat":    c.RateLimit.Chat,
		"flow":    c.RateLimit.Flow,
		"threads": c.RateLimit.Threads,
		"history": c.RateLimit.History,
		"delete":  c.RateLimit.Delete,
	} {
		if _, _, err := ParseRate(rate); err != nil {
			errs = append(errs, fmt.Errorf("ratelimit.%s: %w", route, err))
		}
	}
	if c.Chat.TokenBudget <= 0 {
		errs = append(errs, errors.New("chat.token_budget: must be positive"))
	}
	return errors.Join(errs...)
}

// EncryptionKey decodes store.encryption_key.
func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := decodeKey(c.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	return key, nil
}

// FallbackKeys decodes store.fallback_keys.
func (c *Config) FallbackKeys() ([][]byte, error) {
	keys := make([][]byte, 0, len(c.Store.FallbackKeys))
	for i, k := range c.Store.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}
