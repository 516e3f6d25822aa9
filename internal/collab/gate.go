package collab

import "sync"

// MockGate is a process-lifetime switch that forces mock mode. It is
// constructed once at application start and injected into every Client,
// so that a permanent fallback triggered by one workspace applies to all
// subsequent connections.
type MockGate struct {
	mu     sync.Mutex
	forced bool
}

// NewMockGate creates a gate. Pass forced=true in environments with no
// reachable collaboration server (development without a configured base URL).
func NewMockGate(forced bool) *MockGate {
	return &MockGate{forced: forced}
}

// Force trips the gate for the remainder of the process lifetime.
func (g *MockGate) Force() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forced = true
}

// Forced reports whether mock mode is in effect.
func (g *MockGate) Forced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forced
}
