package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	backend "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/internal/config"
	"github.com/aretw0/mindgraph/pkg/adapters/anthropic"
	"github.com/aretw0/mindgraph/pkg/adapters/file"
	httpAdapter "github.com/aretw0/mindgraph/pkg/adapters/http"
	"github.com/aretw0/mindgraph/pkg/adapters/memory"
	"github.com/aretw0/mindgraph/pkg/adapters/modeltest"
	"github.com/aretw0/mindgraph/pkg/adapters/openai"
	"github.com/aretw0/mindgraph/pkg/adapters/process"
	"github.com/aretw0/mindgraph/pkg/adapters/redis"
	"github.com/aretw0/mindgraph/pkg/adapters/sqlite"
	"github.com/aretw0/mindgraph/pkg/chat"
	"github.com/aretw0/mindgraph/pkg/observability"
	"github.com/aretw0/mindgraph/pkg/persistence/middleware"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/reflection"
	"github.com/aretw0/mindgraph/pkg/session"
	"github.com/aretw0/mindgraph/pkg/tools/thoughts"
)

// DefaultSQLitePath is used when the sqlite driver has no path.
const DefaultSQLitePath = ".mindgraph/mindgraph.db"

// App is an engine wired from configuration, together with the
// collaborators the transports need.
type App struct {
	Engine  *mindgraph.Engine
	Metrics *observability.Metrics
	Broker  *httpAdapter.Broker
	Corpus  *thoughts.Corpus
	Logger  *slog.Logger
	// TokenCounter is the tokenizer used for the history budget, nil when
	// the engine estimates.
	TokenCounter chat.TokenCounter

	closers []io.Closer
}

// Close releases stores and connections opened by NewApp.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewApp builds the engine described by cfg.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Logger: logger, Broker: httpAdapter.NewBroker(logger)}

	store, locker, err := app.openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	store, err = wrapStore(store, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	model, err := openModel(cfg.Model, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	corpus, err := loadCorpus(cfg.Tools.ThoughtsFile)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Corpus = corpus

	tools, err := loadTools(cfg.Tools, corpus)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	policy, err := session.ParsePolicy(cfg.Lease.Policy)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	leaseOpts := []session.Option{
		session.WithPolicy(policy),
		session.WithLeaseTTL(cfg.Lease.TTL),
		session.WithLogger(logger),
	}
	if locker != nil {
		leaseOpts = append(leaseOpts, session.WithLocker(locker))
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Metrics = metrics

	opts := []mindgraph.Option{
		mindgraph.WithStore(store),
		mindgraph.WithModel(model),
		mindgraph.WithTools(tools...),
		mindgraph.WithRetriever(corpus),
		mindgraph.WithLeaseManager(session.NewManager(leaseOpts...)),
		mindgraph.WithLogger(logger),
		mindgraph.WithLifecycleHooks(metrics.Hooks()),
		mindgraph.WithLifecycleHooks(observability.LogHooks(logger)),
		mindgraph.WithLifecycleHooks(app.Broker.Hooks()),
		mindgraph.WithTokenBudget(cfg.Chat.TokenBudget),
		mindgraph.WithStepLimit(cfg.Chat.StepLimit),
		mindgraph.WithMaxConcurrency(cfg.Chat.MaxConcurrency),
		mindgraph.WithReflectionLimits(reflection.Limits{
			Themes:   cfg.Reflection.MaxThemes,
			Emotions: cfg.Reflection.MaxEmotions,
			Goals:    cfg.Reflection.MaxGoals,
		}),
		mindgraph.WithConcurrency(mindgraph.Concurrency{
			Model: cfg.Model.PoolSize,
			Tools: cfg.Chat.ToolPoolSize,
			Store: cfg.Store.PoolSize,
		}),
	}
	if cfg.Model.Provider == "openai" {
		counter, err := chat.TiktokenCounter(cfg.Model.Name)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.TokenCounter = counter
		opts = append(opts, mindgraph.WithTokenCounter(counter))
	}
	if cfg.Chat.SystemPrompt != "" {
		opts = append(opts, mindgraph.WithSystemPrompt(cfg.Chat.SystemPrompt))
	}

	engine, err := mindgraph.New(opts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

func (a *App) openStore(cfg config.StoreConfig) (ports.CheckpointStore, ports.DistributedLocker, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil, nil
	case "file":
		return file.New(cfg.Path), nil, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = DefaultSQLitePath
		}
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, st)
		return st, nil, nil
	case "redis":
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts := []redis.Option{redis.WithPrefix(cfg.Prefix)}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		st := redis.NewFromClient(client, opts...)
		a.closers = append(a.closers, st)
		return st, redis.NewLocker(client, cfg.Prefix), nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// wrapStore applies redaction and encryption. Redaction runs first so
// secrets never reach the cipher.
func wrapStore(store ports.CheckpointStore, cfg *config.Config) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if len(cfg.Store.RedactKeys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.RedactKeys))
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := cfg.EncryptionKey()
		if err != nil {
			return nil, err
		}
		fallbacks, err := cfg.FallbackKeys()
		if err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    key,
			FallbackKeys: fallbacks,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

func openModel(cfg config.ModelConfig, logger *slog.Logger) (ports.Model, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, errors.New("model.api_key is required for openai (or set OPENAI_API_KEY)")
		}
		return openai.New(cfg.APIKey, cfg.BaseURL,
			openai.WithModel(cfg.Name),
			openai.WithMaxTokens(cfg.MaxTokens),
			openai.WithLogger(logger),
		), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, errors.New("model.api_key is required for anthropic (or set ANTHROPIC_API_KEY)")
		}
		return anthropic.New(cfg.APIKey, cfg.BaseURL,
			anthropic.WithModel(cfg.Name),
			anthropic.WithMaxTokens(cfg.MaxTokens),
			anthropic.WithLogger(logger),
		), nil
	case "scripted":
		return modeltest.NewEcho(), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
}

// fetchSettings is tools.settings.fetch_relevant_thoughts.
type fetchSettings struct {
	TopK       int `mapstructure:"top_k"`
	PreviewLen int `mapstructure:"preview_len"`
}

func loadTools(cfg config.ToolsConfig, corpus *thoughts.Corpus) ([]ports.Tool, error) {
	var fs fetchSettings
	if raw, ok := cfg.Settings[thoughts.FetchRelevantName]; ok {
		if err := config.Decode(raw, &fs); err != nil {
			return nil, fmt.Errorf("tools.settings.%s: %w", thoughts.FetchRelevantName, err)
		}
	}
	tools := thoughts.Tools(corpus, corpus, thoughts.WithTopK(fs.TopK), thoughts.WithPreviewLen(fs.PreviewLen))

	if cfg.ProcessFile == "" {
		return tools, nil
	}
	cfgs, err := process.LoadTools(cfg.ProcessFile)
	if err != nil {
		return nil, err
	}
	procs, err := process.Tools(cfgs)
	if err != nil {
		return nil, err
	}
	return append(tools, procs...), nil
}

// loadCorpus reads a list of thoughts. An empty path or a missing file gives
// an empty corpus.
func loadCorpus(path string) (*thoughts.Corpus, error) {
	if path == "" {
		return thoughts.NewCorpus(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return thoughts.NewCorpus(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thoughts file: %w", err)
	}

	var list []ports.Thought
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &list)
	} else {
		// YAML goes through JSON so the thought's json tags apply.
		var raw any
		if err = yaml.Unmarshal(data, &raw); err == nil {
			var js []byte
			if js, err = json.Marshal(raw); err == nil {
				err = json.Unmarshal(js, &list)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse thoughts file %s: %w", path, err)
	}
	return thoughts.NewCorpus(list...), nil
}

// RateLimits converts the ratelimit section for the HTTP server.
func RateLimits(cfg config.RateLimitConfig) (httpAdapter.RateLimits, error) {
	var out httpAdapter.RateLimits
	for _, r := range []struct {
		name string
		in   string
		out  *httpAdapter.Rate
	}{
		{"chat", cfg.Chat, &out.Chat},
		{"flow", cfg.Flow, &out.Flow},
		{"threads", cfg.Threads, &out.Threads},
		{"history", cfg.History, &out.History},
		{"delete", cfg.Delete, &out.Delete},
	} {
		n, window, err := config.ParseRate(r.in)
		if err != nil {
			return out, fmt.Errorf("ratelimit.%s: %w", r.name, err)
		}
		*r.out = httpAdapter.Rate{Requests: n, Window: window}
	}
	return out, nil
}
