package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// HeaderName and HeaderValue mark a response as a data stream for AI SDK clients.
const (
	HeaderName  = "x-vercel-ai-data-stream"
	HeaderValue = "v1"
)

// WriteTo copies frames to w, flushing after each one when w supports it.
// A write failure is returned as *domain.StreamTransportError; the remaining
// frames are drained so the producer can finish.
func WriteTo(w io.Writer, frames <-chan Frame) error {
	flusher, _ := w.(http.Flusher)
	var werr error
	for f := range frames {
		if werr != nil {
			continue
		}
		if _, err := io.WriteString(w, f.String()); err != nil {
			werr = &domain.StreamTransportError{Err: err}
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return werr
}

// Collect drains frames into a slice.
func Collect(ctx context.Context, frames <-chan Frame) []Frame {
	var out []Frame
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-ctx.Done():
			return out
		}
	}
}
