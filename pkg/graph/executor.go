package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/session"
)

// Executor runs a compiled graph against a checkpoint store. One Executor
// serves any number of threads concurrently; each thread is guarded by a lease.
type Executor[S any] struct {
	graph *Compiled[S]
	store ports.CheckpointStore
	opts  options
}

type options struct {
	leases         *session.Manager
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	stepLimit      int
	maxConcurrency int
	clock          func() time.Time
}

// Option configures an Executor.
type Option func(*options)

// WithLeaseManager shares a lease manager between executors that write the
// same threads.
func WithLeaseManager(m *session.Manager) Option {
	return func(o *options) {
		o.leases = m
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStepLimit aborts a run after n super-steps within one invocation.
// Zero, the default, leaves loops unbounded.
func WithStepLimit(n int) Option {
	return func(o *options) {
		o.stepLimit = n
	}
}

// WithMaxConcurrency bounds the number of nodes running at once within a step.
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrency = n
	}
}

// NewExecutor binds a compiled graph to a store.
func NewExecutor[S any](g *Compiled[S], store ports.CheckpointStore, opts ...Option) *Executor[S] {
	o := options{
		logger: logging.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.leases == nil {
		o.leases = session.NewManager(session.WithLogger(o.logger))
	}
	return &Executor[S]{graph: g, store: store, opts: o}
}

// Graph returns the compiled graph the executor runs.
func (e *Executor[S]) Graph() *Compiled[S] {
	return e.graph
}

// Submit merges input into the thread's latest state and runs the graph until
// it reaches End. A thread whose previous run was interrupted mid-way first
// completes the pending steps, then takes the new input.
func (e *Executor[S]) Submit(ctx context.Context, threadID string, input S, rc domain.RunContext) (S, error) {
	return e.run(ctx, threadID, &input, rc)
}

// Resume continues a thread from its latest checkpoint without new input.
// It is a no-op for threads whose last run finished.
func (e *Executor[S]) Resume(ctx context.Context, threadID string, rc domain.RunContext) (S, error) {
	return e.run(ctx, threadID, nil, rc)
}

// State decodes the latest checkpoint of a thread.
func (e *Executor[S]) State(ctx context.Context, threadID string) (S, *domain.Checkpoint, error) {
	var state S
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, domain.ErrThreadNotFound) {
			return state, nil, err
		}
		return state, nil, &domain.PersistenceError{Op: "load", ThreadID: threadID, Err: err}
	}
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, nil, &domain.PersistenceError{Op: "decode", ThreadID: threadID, Err: err}
	}
	return state, cp, nil
}

// Delete removes a thread's checkpoints while holding its lease.
func (e *Executor[S]) Delete(ctx context.Context, threadID string) error {
	return e.opts.leases.WithLease(ctx, threadID, func(ctx context.Context) error {
		if err := e.store.Delete(ctx, threadID); err != nil {
			return &domain.PersistenceError{Op: "delete", ThreadID: threadID, Err: err}
		}
		return nil
	})
}

func (e *Executor[S]) run(ctx context.Context, threadID string, input *S, rc domain.RunContext) (S, error) {
	var out S
	ctx = domain.WithRunContext(withThread(ctx, threadID), rc)
	logger := e.opts.logger.With("thread_id", threadID)

	err := e.opts.leases.WithLease(ctx, threadID, func(ctx context.Context) error {
		state, cp, err := e.State(ctx, threadID)
		seq := int64(-1)
		var next []string
		switch {
		case errors.Is(err, domain.ErrThreadNotFound):
			if input == nil {
				return fmt.Errorf("cannot resume thread %q: %w", threadID, domain.ErrThreadNotFound)
			}
		case err != nil:
			return err
		default:
			seq = cp.Seq
			if !cp.Finished() {
				next = cp.Next
			}
		}

		if len(next) > 0 {
			logger.Debug("Resuming pending steps", "seq", seq, "next", next)
			if state, seq, err = e.loop(ctx, threadID, state, seq, next, logger); err != nil {
				return err
			}
		}

		if input != nil {
			var start []string
			if state, seq, start, err = e.applyInput(ctx, threadID, state, seq, *input); err != nil {
				return err
			}
			if state, _, err = e.loop(ctx, threadID, state, seq, start, logger); err != nil {
				return err
			}
		}

		out = state
		return nil
	})
	return out, err
}

// applyInput merges the caller's input and persists it as its own checkpoint,
// so a crash before the first node still keeps the input.
func (e *Executor[S]) applyInput(ctx context.Context, threadID string, state S, seq int64, input S) (S, int64, []string, error) {
	partial, err := json.Marshal(input)
	if err != nil {
		return state, seq, nil, &domain.PersistenceError{Op: "encode", ThreadID: threadID, Err: err}
	}
	e.graph.schema.Merge(&state, input)

	start, err := e.route([]string{Start}, state)
	if err != nil {
		return state, seq, nil, err
	}
	if err := e.save(ctx, threadID, seq+1, state, start, []domain.NodeWrite{{Node: domain.InputNode, Partial: partial}}); err != nil {
		return state, seq, nil, err
	}
	return state, seq + 1, start, nil
}

// loop executes super-steps until the frontier is exhausted.
func (e *Executor[S]) loop(ctx context.Context, threadID string, state S, seq int64, frontier []string, logger *slog.Logger) (S, int64, error) {
	steps := 0
	for !finished(frontier) {
		if err := ctx.Err(); err != nil {
			return state, seq, err
		}
		if e.opts.stepLimit > 0 && steps >= e.opts.stepLimit {
			return state, seq, fmt.Errorf("thread %q after %d steps: %w", threadID, steps, domain.ErrStepLimit)
		}

		step := seq + 1
		partials, err := e.step(ctx, threadID, step, state, frontier)
		if err != nil {
			logger.Warn("Step failed; no checkpoint written", "seq", step, "frontier", frontier, "err", err)
			return state, seq, err
		}

		writes := make([]domain.NodeWrite, 0, len(frontier))
		for i, node := range frontier {
			e.graph.schema.Merge(&state, partials[i])
			raw, err := json.Marshal(partials[i])
			if err != nil {
				return state, seq, &domain.PersistenceError{Op: "encode", ThreadID: threadID, Err: err}
			}
			writes = append(writes, domain.NodeWrite{Node: node, Partial: raw})
		}

		next, err := e.route(frontier, state)
		if err != nil {
			return state, seq, err
		}
		if err := e.save(ctx, threadID, step, state, next, writes); err != nil {
			return state, seq, err
		}
		logger.Debug("Step committed", "seq", step, "nodes", frontier, "next", next)

		seq = step
		frontier = next
		steps++
	}
	return state, seq, nil
}

// step runs every frontier node concurrently and waits for all of them.
// Any failure discards the whole step.
func (e *Executor[S]) step(ctx context.Context, threadID string, seq int64, state S, frontier []string) ([]S, error) {
	e.graph.schema.prepare(&state)
	partials := make([]S, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.maxConcurrency > 0 {
		g.SetLimit(e.opts.maxConcurrency)
	}
	for i, name := range frontier {
		fn := e.graph.nodes[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partial, err := e.invoke(withNode(gctx, name), threadID, seq, name, fn, state)
			if err != nil {
				return &domain.NodeExecutionError{ThreadID: threadID, Node: name, Step: seq, Err: err}
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return partials, nil
}

func (e *Executor[S]) invoke(ctx context.Context, threadID string, seq int64, name string, fn NodeFunc[S], state S) (partial S, err error) {
	started := e.opts.clock()
	event := &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: started, Type: domain.EventNodeEnter, ThreadID: threadID},
		NodeID:    name,
		Step:      int(seq),
	}
	if e.opts.hooks.OnNodeEnter != nil {
		e.opts.hooks.OnNodeEnter(ctx, event)
	}

	defer func() {
		if r := recover(); r != nil {
			e.opts.logger.Error("Node panicked", "node", name, "thread_id", threadID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if e.opts.hooks.OnNodeLeave != nil {
			leave := *event
			leave.Type = domain.EventNodeLeave
			leave.Timestamp = e.opts.clock()
			leave.Duration = leave.Timestamp.Sub(started)
			leave.Err = err
			e.opts.hooks.OnNodeLeave(ctx, &leave)
		}
		if err == nil {
			Emit(ctx, domain.StreamEvent{Type: domain.EventNodeFinished, Node: name})
		}
	}()

	return fn(ctx, state)
}

// route computes the union of successors of the completed nodes, in frontier
// order, with End dropped unless nothing else remains.
func (e *Executor[S]) route(completed []string, state S) ([]string, error) {
	seen := make(map[string]bool)
	var next []string
	for _, node := range completed {
		targets, err := e.graph.successors(node, state)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t == End || seen[t] {
				continue
			}
			seen[t] = true
			next = append(next, t)
		}
	}
	if len(next) == 0 {
		return []string{End}, nil
	}
	return next, nil
}

func (e *Executor[S]) save(ctx context.Context, threadID string, seq int64, state S, next []string, writes []domain.NodeWrite) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return &domain.PersistenceError{Op: "encode", ThreadID: threadID, Err: err}
	}
	cp := &domain.Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		State:     raw,
		Next:      next,
		Writes:    writes,
		CreatedAt: e.opts.clock(),
	}
	if err := e.store.Save(ctx, cp); err != nil {
		return &domain.PersistenceError{Op: "save", ThreadID: threadID, Err: err}
	}
	if e.opts.hooks.OnCheckpoint != nil {
		e.opts.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase: domain.EventBase{Timestamp: cp.CreatedAt, Type: domain.EventCheckpoint, ThreadID: threadID},
			Seq:       seq,
			Next:      next,
		})
	}
	return nil
}

func finished(frontier []string) bool {
	return len(frontier) == 0 || (len(frontier) == 1 && frontier[0] == End)
}
