// Package source wraps upstream providers behind connectors that compose
// rate limiting, circuit breaking, and performance tracking around every
// outbound call.
package source

import (
	"context"
	"time"

	"github.com/linepulse/linepulse/internal/model"
)

// Request identifies one upstream fetch.
type Request struct {
	DataType model.DataType
	EntityID string
}

// Response is the raw result of one upstream call.
type Response struct {
	Fields     map[string]any
	StatusCode int
	Latency    time.Duration
}

// Transport executes a single call against one upstream provider. The
// engine does not specify wire formats; implementations decode whatever the
// provider speaks into a flat field map. Failed calls return a
// *resilience.TransportError.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (Response, error)

func (f TransportFunc) Do(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
