package publishing

import (
	"fmt"
	"sync"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// Registry maps platform names to publishers. Lookups are case-insensitive.
type Registry struct {
	mu         sync.RWMutex
	publishers map[enums.Platform]Publisher
	order      []enums.Platform
}

// NewRegistry builds a registry and registers publishers in order.
func NewRegistry(publishers ...Publisher) (*Registry, error) {
	r := &Registry{publishers: map[enums.Platform]Publisher{}}
	for _, p := range publishers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p under its platform name.
func (r *Registry) Register(p Publisher) error {
	if p == nil {
		return fmt.Errorf("publisher required")
	}
	name := enums.NormalizePlatform(string(p.Platform()))
	if name == "" {
		return fmt.Errorf("publisher platform name required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[name]; exists {
		return fmt.Errorf("publisher for %s already registered", name)
	}
	r.publishers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the publisher for name.
func (r *Registry) Resolve(name string) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[enums.NormalizePlatform(name)]
	return p, ok
}

// Platforms lists registered platforms in registration order.
func (r *Registry) Platforms() []enums.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]enums.Platform, len(r.order))
	copy(out, r.order)
	return out
}

// PublisherHealth is the operator view of one registered publisher.
type PublisherHealth struct {
	Platform     enums.Platform `json:"platform"`
	Capabilities string         `json:"capabilities"`
	BreakerOpen  bool           `json:"breaker_open"`
}

type breakerReporter interface {
	BreakerOpen() bool
}

// Health reports each publisher in registration order. Publishers without a
// circuit breaker always report it closed.
func (r *Registry) Health() []PublisherHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PublisherHealth, 0, len(r.order))
	for _, name := range r.order {
		p := r.publishers[name]
		h := PublisherHealth{Platform: name, Capabilities: p.Capabilities().String()}
		if br, ok := p.(breakerReporter); ok {
			h.BreakerOpen = br.BreakerOpen()
		}
		out = append(out, h)
	}
	return out
}
