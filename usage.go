package mindgraph

import (
	"context"
	"sync"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

type meterKey struct{}

// meter sums the token usage of the model calls made during one run.
type meter struct {
	mu    sync.Mutex
	usage domain.Usage
}

func withMeter(ctx context.Context) (context.Context, *meter) {
	m := &meter{}
	return context.WithValue(ctx, meterKey{}, m), m
}

func (m *meter) add(u domain.Usage) {
	m.mu.Lock()
	m.usage = m.usage.Add(u)
	m.mu.Unlock()
}

func (m *meter) total() domain.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// meteredModel reports usage to the meter carried by the call context.
type meteredModel struct {
	next ports.Model
}

func (m meteredModel) Complete(ctx context.Context, req ports.ModelRequest, onDelta ports.DeltaFunc) (ports.ModelResponse, error) {
	resp, err := m.next.Complete(ctx, req, onDelta)
	if mt, ok := ctx.Value(meterKey{}).(*meter); ok && err == nil {
		mt.add(resp.Usage)
	}
	return resp, err
}
