package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator produces deterministic identifiers for tests. Each prefix keeps
// its own counter so the ids of one entity kind do not shift when another kind
// is created.
type IDGenerator struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewIDGenerator constructs an empty generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{counters: make(map[string]uint64)}
}

// Next returns the next identifier for prefix, e.g. "evt-1".
func (g *IDGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[prefix]++
	return fmt.Sprintf("%s-%d", prefix, g.counters[prefix])
}

// For binds Next to prefix for dependency injection.
func (g *IDGenerator) For(prefix string) func() string {
	if g == nil {
		return func() string { return "" }
	}
	return func() string { return g.Next(prefix) }
}

// Reset clears every counter.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	clear(g.counters)
	g.mu.Unlock()
}
