package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
)

// Result is what a streamed run reports when it completes.
type Result struct {
	FinishReason string
	Usage        *domain.Usage
}

// RunFunc executes a run. Events emitted through graph.Emit on ctx are
// streamed as they happen.
type RunFunc func(ctx context.Context) (Result, error)

// Run starts fn and returns its frames. The run executes on a context
// detached from ctx: cancelling ctx stops delivery, never the run. Unless
// ctx ends first, the channel ends with exactly one finish frame or one
// error frame and is then closed. Emitting never blocks on the subscriber.
func Run(ctx context.Context, fn RunFunc) <-chan Frame {
	q := newQueue()
	out := make(chan Frame)

	runCtx := graph.WithEmitter(context.WithoutCancel(ctx), func(ev domain.StreamEvent) {
		if f, ok := Encode(ev); ok && !f.Terminal() {
			q.push(f)
		}
	})

	go func() {
		res, err := safeRun(runCtx, fn)
		if err != nil {
			q.finish(ErrorFrame(err))
			return
		}
		reason := res.FinishReason
		if reason == "" {
			reason = "stop"
		}
		q.finish(FinishFrame(Finish{FinishReason: reason, Usage: res.Usage}))
	}()

	go q.pump(ctx, out)
	return out
}

func safeRun(ctx context.Context, fn RunFunc) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// queue is an unbounded FIFO between producers and the pump. Once the pump
// has exited, frames are dropped.
type queue struct {
	mu     sync.Mutex
	frames []Frame
	done   bool
	closed bool
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(f Frame) {
	q.mu.Lock()
	if q.done || q.closed {
		q.mu.Unlock()
		return
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	q.signal()
}

// finish enqueues the terminal frame. Later pushes are dropped.
func (q *queue) finish(f Frame) {
	q.mu.Lock()
	if !q.closed {
		q.frames = append(q.frames, f)
	}
	q.done = true
	q.mu.Unlock()
	q.signal()
}

// close discards buffered frames and drops later ones.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) take() ([]Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.frames
	q.frames = nil
	return batch, q.done
}

func (q *queue) pump(ctx context.Context, out chan<- Frame) {
	defer close(out)
	defer q.close()
	for {
		batch, done := q.take()
		for _, f := range batch {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
		if done {
			return
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}
