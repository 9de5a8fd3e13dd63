// Package tracker collects usage and health counters per subsystem
// (location provider, directions provider) for the stats endpoint.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks counters per named source.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*SourceStats
}

// SourceStats holds counters for one source.
// Fields are accessed atomically.
type SourceStats struct {
	FixesProcessed int64
	FixesRejected  int64
	CacheHits      int64
	CacheMisses    int64
	APISuccess     int64
	APIFailures    int64
	Restarts       int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*SourceStats),
	}
}

// getStats returns the stats object for a source, creating it if needed.
func (t *Tracker) getStats(source string) *SourceStats {
	t.mu.RLock()
	s, ok := t.stats[source]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[source]; ok {
		return s
	}
	s = &SourceStats{}
	t.stats[source] = s
	return s
}

// TrackFix increments the processed-fix counter.
func (t *Tracker) TrackFix(source string) {
	atomic.AddInt64(&t.getStats(source).FixesProcessed, 1)
}

// TrackRejectedFix increments the rejected-fix counter (invalid samples).
func (t *Tracker) TrackRejectedFix(source string) {
	atomic.AddInt64(&t.getStats(source).FixesRejected, 1)
}

func (t *Tracker) TrackCacheHit(source string) {
	atomic.AddInt64(&t.getStats(source).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(source string) {
	atomic.AddInt64(&t.getStats(source).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(source string) {
	atomic.AddInt64(&t.getStats(source).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(source string) {
	atomic.AddInt64(&t.getStats(source).APIFailures, 1)
}

// TrackRestart increments the subscription-restart counter.
func (t *Tracker) TrackRestart(source string) {
	atomic.AddInt64(&t.getStats(source).Restarts, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]SourceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]SourceStats)
	for k, v := range t.stats {
		result[k] = SourceStats{
			FixesProcessed: atomic.LoadInt64(&v.FixesProcessed),
			FixesRejected:  atomic.LoadInt64(&v.FixesRejected),
			CacheHits:      atomic.LoadInt64(&v.CacheHits),
			CacheMisses:    atomic.LoadInt64(&v.CacheMisses),
			APISuccess:     atomic.LoadInt64(&v.APISuccess),
			APIFailures:    atomic.LoadInt64(&v.APIFailures),
			Restarts:       atomic.LoadInt64(&v.Restarts),
		}
	}
	return result
}
