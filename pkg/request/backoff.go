package request

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SourceBackoff manages exponential backoff per named source
// (a routing provider, a location source, etc).
type SourceBackoff struct {
	mu        sync.RWMutex
	sources   map[string]*backoffState
	baseDelay time.Duration
	maxDelay  time.Duration
}

type backoffState struct {
	failureCount int
	nextAllowed  time.Time
}

// NewSourceBackoff creates a new backoff manager.
func NewSourceBackoff(baseDelay, maxDelay time.Duration) *SourceBackoff {
	return &SourceBackoff{
		sources:   make(map[string]*backoffState),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Wait blocks until the source is allowed to make an attempt, or the
// context is canceled.
func (b *SourceBackoff) Wait(ctx context.Context, source string) error {
	b.mu.RLock()
	state, exists := b.sources[source]
	b.mu.RUnlock()

	if !exists {
		return nil // No backoff state, proceed immediately
	}

	now := time.Now()
	if !now.Before(state.nextAllowed) {
		return nil
	}

	select {
	case <-time.After(time.Until(state.nextAllowed)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordFailure increases the backoff delay for a source.
func (b *SourceBackoff) RecordFailure(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.sources[source]
	if !exists {
		state = &backoffState{}
		b.sources[source] = state
	}

	state.failureCount++
	delay := b.calculateDelay(state.failureCount)
	state.nextAllowed = time.Now().Add(delay)
}

// RecordSuccess decreases the backoff delay (gradual recovery).
func (b *SourceBackoff) RecordSuccess(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.sources[source]
	if !exists {
		return // No state to recover from
	}

	if state.failureCount > 0 {
		state.failureCount--
	}
	if state.failureCount == 0 {
		state.nextAllowed = time.Time{} // Clear backoff
	}
}

// calculateDelay returns exponential delay with jitter.
func (b *SourceBackoff) calculateDelay(failures int) time.Duration {
	// Exponential: baseDelay * 2^(failures-1)
	multiplier := math.Pow(2, float64(failures-1))
	delay := time.Duration(float64(b.baseDelay) * multiplier)

	// Cap at maxDelay
	if delay > b.maxDelay {
		delay = b.maxDelay
	}

	// Add 10% jitter
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// State returns current backoff state for a source (for debugging/metrics).
func (b *SourceBackoff) State(source string) (failureCount int, nextAllowed time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if state, exists := b.sources[source]; exists {
		return state.failureCount, state.nextAllowed
	}
	return 0, time.Time{}
}
