package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_DropsFramesAfterPumpExits(t *testing.T) {
	q := newQueue()
	q.push(TextFrame("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan Frame)
	q.pump(ctx, out)

	_, open := <-out
	assert.False(t, open)
	assert.Zero(t, q.size())

	for range 100 {
		q.push(TextFrame("x"))
	}
	q.finish(FinishFrame(Finish{FinishReason: "stop"}))
	assert.Zero(t, q.size())
}

func TestQueue_DeliversInOrder(t *testing.T) {
	q := newQueue()
	q.push(TextFrame("a"))
	q.push(TextFrame("b"))
	q.finish(FinishFrame(Finish{FinishReason: "stop"}))

	out := make(chan Frame, 3)
	q.pump(context.Background(), out)

	var got []Tag
	for f := range out {
		got = append(got, f.Tag)
	}
	assert.Equal(t, []Tag{TagText, TagText, TagFinish}, got)
}
