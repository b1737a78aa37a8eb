package graph

import (
	"context"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Emitter receives stream events produced during a run. Implementations must
// not block; the streaming layer queues events on its side.
type Emitter func(domain.StreamEvent)

type emitterKey struct{}

type nodeKey struct{}

type threadKey struct{}

// WithEmitter returns a copy of ctx whose runs publish events to em.
func WithEmitter(ctx context.Context, em Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, em)
}

// Emit publishes ev to the emitter carried by ctx, if any. Events emitted from
// inside a node are tagged with the node name.
func Emit(ctx context.Context, ev domain.StreamEvent) {
	em, ok := ctx.Value(emitterKey{}).(Emitter)
	if !ok || em == nil {
		return
	}
	if ev.Node == "" {
		ev.Node = NodeName(ctx)
	}
	em(ev)
}

// NodeName returns the name of the node currently executing in ctx.
func NodeName(ctx context.Context) string {
	name, _ := ctx.Value(nodeKey{}).(string)
	return name
}

// ThreadID returns the thread the current run belongs to.
func ThreadID(ctx context.Context) string {
	id, _ := ctx.Value(threadKey{}).(string)
	return id
}

func withNode(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeKey{}, name)
}

func withThread(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, threadKey{}, id)
}
