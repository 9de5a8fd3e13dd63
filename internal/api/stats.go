package api

import (
	"net/http"
	"runtime"

	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

// StatsHandler serves the counters collected by the tracker plus a few
// process diagnostics.
type StatsHandler struct {
	tracker *tracker.Tracker
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t}
}

// SourceStatsDTO is the per-source counter block of the stats response.
type SourceStatsDTO struct {
	FixesProcessed int64 `json:"fixes_processed"`
	FixesRejected  int64 `json:"fixes_rejected"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	APISuccess     int64 `json:"api_success"`
	APIFailures    int64 `json:"api_errors"`
	Restarts       int64 `json:"restarts"`
	HitRate        int64 `json:"hit_rate"`
}

// RuntimeStats are coarse process diagnostics.
type RuntimeStats struct {
	AllocMB    uint64 `json:"alloc_mb"`
	SysMB      uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// StatsResponse is the payload of GET /api/stats.
type StatsResponse struct {
	Runtime RuntimeStats              `json:"runtime"`
	Sources map[string]SourceStatsDTO `json:"sources"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Runtime: RuntimeStats{
			AllocMB:    bToMb(mem.Alloc),
			SysMB:      bToMb(mem.Sys),
			NumGC:      mem.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
		Sources: make(map[string]SourceStatsDTO),
	}

	for source, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Sources[source] = SourceStatsDTO{
			FixesProcessed: stats.FixesProcessed,
			FixesRejected:  stats.FixesRejected,
			CacheHits:      stats.CacheHits,
			CacheMisses:    stats.CacheMisses,
			APISuccess:     stats.APISuccess,
			APIFailures:    stats.APIFailures,
			Restarts:       stats.Restarts,
			HitRate:        hitRate,
		}
	}

	writeJSON(w, resp)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
