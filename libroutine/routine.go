// Package libroutine provides a circuit-breaker wrapped execution primitive
// and a process-wide loop manager for periodic background operations.
package libroutine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker refuses the call.
var ErrCircuitOpen = errors.New("libroutine: circuit open")

// State is the circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// Routine is a circuit breaker guarding a repeatedly executed operation.
// After threshold consecutive failures the circuit opens; once resetTimeout
// elapses a single probe call is let through (half-open). A successful probe
// closes the circuit, a failed one reopens it.
type Routine struct {
	mu            sync.Mutex
	state         State
	failures      int
	threshold     int
	resetTimeout  time.Duration
	lastFailure   time.Time
	probeInFlight bool
}

// NewRoutine creates a breaker with the given failure threshold and reset timeout.
func NewRoutine(threshold int, resetTimeout time.Duration) *Routine {
	if threshold <= 0 {
		threshold = 1
	}
	return &Routine{
		state:        Closed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether a call may proceed right now. In the half-open state
// only the first caller is admitted until its probe resolves.
func (r *Routine) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Closed:
		return true
	case Open:
		if time.Since(r.lastFailure) >= r.resetTimeout {
			r.state = HalfOpen
			r.probeInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if r.probeInFlight {
			return false
		}
		r.probeInFlight = true
		return true
	}
	return false
}

// MarkSuccess records a successful call and closes the circuit.
func (r *Routine) MarkSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
	r.state = Closed
	r.probeInFlight = false
}

// MarkFailure records a failed call, opening the circuit at the threshold.
func (r *Routine) MarkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	r.lastFailure = time.Now()
	r.probeInFlight = false
	if r.state == HalfOpen || r.failures >= r.threshold {
		r.state = Open
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (r *Routine) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		r.MarkFailure()
		return err
	}
	r.MarkSuccess()
	return nil
}

// ExecuteWithRetry runs fn up to attempts times, sleeping interval between
// tries. An open circuit aborts immediately with ErrCircuitOpen; context
// cancellation aborts the wait.
func (r *Routine) ExecuteWithRetry(ctx context.Context, interval time.Duration, attempts int, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		err := r.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Loop runs fn immediately and then on every interval tick or trigger message
// until the context is done. Failures are reported to errHandler and counted
// by the breaker; while the circuit is open, ticks are skipped.
func (r *Routine) Loop(ctx context.Context, interval time.Duration, trigger <-chan struct{}, fn func(ctx context.Context) error, errHandler func(error)) {
	run := func() {
		if err := r.Execute(ctx, fn); err != nil && !errors.Is(err, ErrCircuitOpen) {
			errHandler(err)
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		case _, ok := <-trigger:
			if !ok {
				return
			}
			run()
		}
	}
}

// GetState returns the current breaker state, refreshing the open→half-open
// transition so observers see HalfOpen once the reset timeout has elapsed.
func (r *Routine) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Open && time.Since(r.lastFailure) >= r.resetTimeout {
		r.state = HalfOpen
	}
	return r.state
}

// ForceOpen opens the circuit regardless of the failure count.
func (r *Routine) ForceOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Open
	r.lastFailure = time.Now().Add(time.Hour) // keep it open past any reset timeout
}

// ForceClose closes the circuit and clears the failure count.
func (r *Routine) ForceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Closed
	r.failures = 0
	r.probeInFlight = false
}

func (r *Routine) GetThreshold() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}

func (r *Routine) GetResetTimeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetTimeout
}
