package mindgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/adapters/memory"
	"github.com/aretw0/mindgraph/pkg/chat"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
	"github.com/aretw0/mindgraph/pkg/pool"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/reflection"
	"github.com/aretw0/mindgraph/pkg/registry"
	"github.com/aretw0/mindgraph/pkg/session"
	"github.com/aretw0/mindgraph/pkg/stream"
)

// Version is the engine release.
const Version = "0.4.0"

// ReflectionPrefix namespaces the threads that hold reflection runs. A
// conversation thread and its reflection share the suffix.
const ReflectionPrefix = "reflection:"

// OwnerPrefix namespaces the threads of an identified user. Callers never use
// either prefix in a thread id.
const OwnerPrefix = "user:"

// ErrNoAnswer is returned when a run ends without an assistant text message,
// for example when a step limit stops the tool loop.
var ErrNoAnswer = errors.New("run ended without an answer")

// Engine is the high-level entry point for the library. It runs the
// tool-calling conversation graph and the reflection pipeline over one
// checkpoint store and one lease manager.
type Engine struct {
	store        ports.CheckpointStore
	model        ports.Model
	tools        []ports.Tool
	retriever    ports.Retriever
	leases       *session.Manager
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	systemPrompt string
	tokenBudget  int
	tokenCounter chat.TokenCounter
	limits       *reflection.Limits
	stepLimit    int
	concurrency  Concurrency

	maxConcurrency int

	registry *registry.Registry
	agent    *chat.Agent
	chat     *graph.Executor[chat.State]
	pipeline *reflection.Pipeline
	reflect  *graph.Executor[reflection.State]
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.model == nil {
		return nil, errors.New("a model is required")
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.leases == nil {
		e.leases = session.NewManager(session.WithLogger(e.logger))
	}

	model := ports.Model(meteredModel{next: e.model})
	if e.concurrency.Model > 0 {
		model = pool.Model(model, pool.NewLimiter(e.concurrency.Model))
	}
	store := e.store
	if e.concurrency.Store > 0 {
		store = pool.Store(store, pool.NewLimiter(e.concurrency.Store))
	}

	e.registry = registry.NewRegistry(e.tools...)
	chatOpts := []chat.Option{
		chat.WithLifecycleHooks(e.hooks),
		chat.WithLogger(e.logger),
		chat.WithToolLimiter(pool.NewLimiter(e.concurrency.Tools)),
	}
	if e.systemPrompt != "" {
		chatOpts = append(chatOpts, chat.WithSystemPrompt(e.systemPrompt))
	}
	if e.tokenBudget != 0 {
		chatOpts = append(chatOpts, chat.WithTokenBudget(e.tokenBudget))
	}
	if e.tokenCounter != nil {
		chatOpts = append(chatOpts, chat.WithTokenCounter(e.tokenCounter))
	}
	agent, err := chat.New(model, e.registry, chatOpts...)
	if err != nil {
		return nil, fmt.Errorf("build chat graph: %w", err)
	}
	e.agent = agent

	reflOpts := []reflection.Option{reflection.WithLogger(e.logger)}
	if e.limits != nil {
		reflOpts = append(reflOpts, reflection.WithLimits(*e.limits))
	}
	pipeline, err := reflection.New(model, e.retriever, reflOpts...)
	if err != nil {
		return nil, fmt.Errorf("build reflection graph: %w", err)
	}
	e.pipeline = pipeline

	execOpts := []graph.Option{
		graph.WithLeaseManager(e.leases),
		graph.WithLifecycleHooks(e.hooks),
		graph.WithLogger(e.logger),
		graph.WithMaxConcurrency(e.maxConcurrency),
	}
	e.chat = graph.NewExecutor(agent.Graph(), store, append(execOpts, graph.WithStepLimit(e.stepLimit))...)
	e.reflect = graph.NewExecutor(pipeline.Graph(), store, execOpts...)

	e.logger.Debug("Engine ready", "tools", e.registry.Len(), "store", fmt.Sprintf("%T", e.store))
	return e, nil
}

func checkThread(threadID string) error {
	switch {
	case strings.TrimSpace(threadID) == "":
		return fmt.Errorf("%w: thread id is required", domain.ErrInvalidThreadID)
	case strings.HasPrefix(threadID, ReflectionPrefix), strings.HasPrefix(threadID, OwnerPrefix):
		return fmt.Errorf("%w: %q uses a reserved prefix", domain.ErrInvalidThreadID, threadID)
	}
	return nil
}

func ownerNamespace(rc domain.RunContext) string {
	if rc.UserID == "" {
		return ""
	}
	return OwnerPrefix + url.PathEscape(rc.UserID) + "/"
}

// ThreadKey returns the store key of a caller's thread. Threads of an
// identified user live in that user's namespace, so two users never share a
// thread and one user's ids are invisible to another.
func ThreadKey(threadID string, rc domain.RunContext) string {
	return ownerNamespace(rc) + threadID
}

// Submit appends input to the thread and runs the conversation until the
// assistant answers. The answer is returned and persisted. A run left
// unfinished by a crash is completed before input is applied, so Submit also
// recovers a thread; Resume does only that.
func (e *Engine) Submit(ctx context.Context, threadID, input string, rc domain.RunContext) (domain.Message, error) {
	if err := checkThread(threadID); err != nil {
		return domain.Message{}, err
	}
	st, err := e.chat.Submit(ctx, ThreadKey(threadID, rc), chat.Input(input), rc)
	if err != nil {
		return domain.Message{}, err
	}
	answer, ok := st.Answer()
	if !ok {
		return domain.Message{}, ErrNoAnswer
	}
	return answer, nil
}

// SubmitStreaming is Submit with incremental delivery. The first frame is a
// metadata frame carrying the thread id; the last is a finish frame with this
// run's token usage, or an error frame. Cancelling ctx stops delivery but the
// run still completes and is checkpointed.
func (e *Engine) SubmitStreaming(ctx context.Context, threadID, input string, rc domain.RunContext) <-chan stream.Frame {
	return stream.Run(ctx, func(ctx context.Context) (stream.Result, error) {
		if err := checkThread(threadID); err != nil {
			return stream.Result{}, err
		}
		graph.Emit(ctx, domain.StreamEvent{
			Type:     domain.EventMetadata,
			Metadata: []any{map[string]string{"threadId": threadID}},
		})

		ctx, m := withMeter(ctx)
		st, err := e.chat.Submit(ctx, ThreadKey(threadID, rc), chat.Input(input), rc)
		if err != nil {
			return stream.Result{}, err
		}
		res := stream.Result{FinishReason: st.FinishReason}
		if u := m.total(); !u.IsZero() {
			res.Usage = &u
		}
		return res, nil
	})
}

// Resume completes a conversation run that was interrupted mid-way.
func (e *Engine) Resume(ctx context.Context, threadID string, rc domain.RunContext) ([]domain.Message, error) {
	if err := checkThread(threadID); err != nil {
		return nil, err
	}
	st, err := e.chat.Resume(ctx, ThreadKey(threadID, rc), rc)
	if err != nil {
		return nil, err
	}
	return st.Messages, nil
}

// History returns the persisted message sequence of a caller's thread.
func (e *Engine) History(ctx context.Context, threadID string, rc domain.RunContext) ([]domain.Message, error) {
	if err := checkThread(threadID); err != nil {
		return nil, err
	}
	st, _, err := e.chat.State(ctx, ThreadKey(threadID, rc))
	if err != nil {
		return nil, err
	}
	return st.Messages, nil
}

// UIHistory returns the thread history shaped for AI SDK clients.
func (e *Engine) UIHistory(ctx context.Context, threadID string, rc domain.RunContext) ([]chat.UIMessage, error) {
	msgs, err := e.History(ctx, threadID, rc)
	if err != nil {
		return nil, err
	}
	return chat.UIMessages(msgs), nil
}

// Checkpoints lists the checkpoint metadata of a caller's thread in order.
func (e *Engine) Checkpoints(ctx context.Context, threadID string, rc domain.RunContext) ([]domain.CheckpointMeta, error) {
	if err := checkThread(threadID); err != nil {
		return nil, err
	}
	metas, err := e.store.History(ctx, ThreadKey(threadID, rc))
	switch {
	case errors.Is(err, domain.ErrThreadNotFound):
		return nil, err
	case err != nil:
		return nil, &domain.PersistenceError{Op: "history", ThreadID: threadID, Err: err}
	}
	for i := range metas {
		metas[i].ThreadID = threadID
	}
	return metas, nil
}

// Reflect runs the reflection pipeline over message. The first call on a
// thread extracts fresh results; later calls revise them with message as
// feedback.
func (e *Engine) Reflect(ctx context.Context, threadID, message string, rc domain.RunContext) (*reflection.Graph, error) {
	if err := checkThread(threadID); err != nil {
		return nil, err
	}
	st, err := e.reflect.Submit(ctx, ReflectionPrefix+ThreadKey(threadID, rc), reflection.Input(message), rc)
	if err != nil {
		return nil, err
	}
	if st.Output == nil {
		return nil, fmt.Errorf("reflection on thread %q produced no graph", threadID)
	}
	return st.Output, nil
}

// Reflection returns the latest reflection graph of a caller's thread.
func (e *Engine) Reflection(ctx context.Context, threadID string, rc domain.RunContext) (*reflection.Graph, error) {
	if err := checkThread(threadID); err != nil {
		return nil, err
	}
	st, _, err := e.reflect.State(ctx, ReflectionPrefix+ThreadKey(threadID, rc))
	if err != nil {
		return nil, err
	}
	if st.Output == nil {
		return nil, fmt.Errorf("reflection on thread %q: %w", threadID, domain.ErrThreadNotFound)
	}
	return st.Output, nil
}

// Threads lists the caller's threads, sorted. Without a user id it lists the
// threads that belong to no user.
func (e *Engine) Threads(ctx context.Context, rc domain.RunContext) ([]string, error) {
	ids, err := e.store.List(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	ns := ownerNamespace(rc)
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimPrefix(id, ReflectionPrefix)
		if ns == "" {
			if strings.HasPrefix(id, OwnerPrefix) {
				continue
			}
		} else {
			var ok bool
			if id, ok = strings.CutPrefix(id, ns); !ok {
				continue
			}
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteThread removes a caller's conversation and reflection checkpoints.
// It returns domain.ErrThreadNotFound when neither exists.
func (e *Engine) DeleteThread(ctx context.Context, threadID string, rc domain.RunContext) error {
	if err := checkThread(threadID); err != nil {
		return err
	}
	key := ThreadKey(threadID, rc)
	found := false
	if _, _, err := e.chat.State(ctx, key); err == nil {
		found = true
		if err := e.chat.Delete(ctx, key); err != nil {
			return err
		}
	} else if !errors.Is(err, domain.ErrThreadNotFound) {
		return err
	}

	if _, _, err := e.reflect.State(ctx, ReflectionPrefix+key); err == nil {
		found = true
		if err := e.reflect.Delete(ctx, ReflectionPrefix+key); err != nil {
			return err
		}
	} else if !errors.Is(err, domain.ErrThreadNotFound) {
		return err
	}

	if !found {
		return fmt.Errorf("delete thread %q: %w", threadID, domain.ErrThreadNotFound)
	}
	e.logger.Info("Thread deleted", "thread_id", threadID, "user_id", rc.UserID)
	return nil
}

// Tools returns the specs of the registered tools.
func (e *Engine) Tools() []domain.ToolSpec {
	return e.registry.Specs()
}

// ChatGraph returns the compiled conversation graph.
func (e *Engine) ChatGraph() *graph.Compiled[chat.State] {
	return e.agent.Graph()
}

// ReflectionGraph returns the compiled reflection pipeline graph.
func (e *Engine) ReflectionGraph() *graph.Compiled[reflection.State] {
	return e.pipeline.Graph()
}
