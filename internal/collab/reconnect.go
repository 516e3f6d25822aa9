package collab

import (
	"math"
	"sync"
	"time"
)

// ReconnectState is the connection recovery state of a client.
type ReconnectState int

const (
	// StateConnected means the real socket is up.
	StateConnected ReconnectState = iota
	// StateRetrying means the socket dropped and reconnect attempts are scheduled.
	StateRetrying
	// StatePermanentMock means retries are exhausted and the client runs in
	// mock mode for the rest of the process lifetime.
	StatePermanentMock
)

// String returns a human-readable state name.
func (s ReconnectState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StatePermanentMock:
		return "permanent-mock"
	default:
		return "unknown"
	}
}

// Reconnector is the reconnect policy state machine. It owns the attempt
// counter and backoff schedule; it performs no I/O, so the policy is
// testable without sockets.
type Reconnector struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int

	mu      sync.Mutex
	state   ReconnectState
	attempt int
}

// NewReconnector creates a reconnector with the given backoff schedule.
func NewReconnector(base, max time.Duration, maxAttempts int) *Reconnector {
	return &Reconnector{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
		state:       StateConnected,
	}
}

// State returns the current recovery state.
func (r *Reconnector) State() ReconnectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Next registers a disconnect or failed attempt and returns the delay before
// the next attempt. retry is false once attempts are exhausted, at which
// point the state is PermanentMock and no further attempts may be made.
func (r *Reconnector) Next() (delay time.Duration, retry bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StatePermanentMock {
		return 0, false
	}

	r.attempt++
	if r.attempt > r.maxAttempts {
		r.state = StatePermanentMock
		return 0, false
	}

	r.state = StateRetrying
	d := time.Duration(float64(r.base) * math.Pow(1.5, float64(r.attempt-1)))
	if d > r.max {
		d = r.max
	}
	return d, true
}

// Succeed resets the attempt counter after a successful connection.
// It is a no-op once the state is PermanentMock.
func (r *Reconnector) Succeed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StatePermanentMock {
		return
	}
	r.state = StateConnected
	r.attempt = 0
}

// Attempt returns the current consecutive failure count.
func (r *Reconnector) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}
