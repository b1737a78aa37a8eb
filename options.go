package mindgraph

import (
	"log/slog"

	"github.com/aretw0/mindgraph/pkg/chat"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/reflection"
	"github.com/aretw0/mindgraph/pkg/session"
)

// Option configures the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store. The default keeps checkpoints in memory.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithModel sets the language model. It is required.
func WithModel(model ports.Model) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithTools registers tools the assistant may call.
func WithTools(tools ...ports.Tool) Option {
	return func(e *Engine) {
		e.tools = append(e.tools, tools...)
	}
}

// WithRetriever sets the thought lookup used to build reflection context.
func WithRetriever(r ports.Retriever) Option {
	return func(e *Engine) {
		e.retriever = r
	}
}

// WithLeaseManager sets the per-thread lease manager, for example one backed
// by a distributed locker.
func WithLeaseManager(m *session.Manager) Option {
	return func(e *Engine) {
		e.leases = m
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSystemPrompt replaces the assistant's system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithTokenBudget bounds the conversation history sent to the model.
func WithTokenBudget(budget int) Option {
	return func(e *Engine) {
		e.tokenBudget = budget
	}
}

// WithTokenCounter sets how history messages are counted against the token
// budget. The default estimates four characters per token.
func WithTokenCounter(c chat.TokenCounter) Option {
	return func(e *Engine) {
		e.tokenCounter = c
	}
}

// WithReflectionLimits caps the nodes each extractor may return.
func WithReflectionLimits(l reflection.Limits) Option {
	return func(e *Engine) {
		e.limits = &l
	}
}

// WithStepLimit aborts a conversation run after n super-steps.
func WithStepLimit(n int) Option {
	return func(e *Engine) {
		e.stepLimit = n
	}
}

// WithMaxConcurrency bounds how many nodes of one super-step run at once.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		e.maxConcurrency = n
	}
}

// Concurrency bounds the shared collaborators. Zero leaves a collaborator
// unbounded.
type Concurrency struct {
	Model int
	Tools int
	Store int
}

// WithConcurrency bounds concurrent model calls, tool invocations and store
// operations across all threads.
func WithConcurrency(c Concurrency) Option {
	return func(e *Engine) {
		e.concurrency = c
	}
}
