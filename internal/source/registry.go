package source

import (
	"sync"

	"github.com/linepulse/linepulse/internal/model"
)

// Registry holds the connectors for all registered sources. Read-mostly:
// registration happens at startup, lookups happen on every fetch.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]*Connector)}
}

// Register adds or replaces a connector. Replacing resets the source's
// breaker, limiter, and tracker state.
func (r *Registry) Register(c *Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Registration().SourceID] = c
}

// Deregister removes a source and drops its state.
func (r *Registry) Deregister(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connectors, sourceID)
}

// Get returns the connector for a source, or nil if not registered.
func (r *Registry) Get(sourceID string) *Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectors[sourceID]
}

// ForDataType returns the connectors whose sources serve the data type.
func (r *Registry) ForDataType(dt model.DataType) []*Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connector
	for _, c := range r.connectors {
		reg := c.Registration()
		if reg.Supports(dt) {
			out = append(out, c)
		}
	}
	return out
}

// All returns every registered connector.
func (r *Registry) All() []*Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	return out
}
