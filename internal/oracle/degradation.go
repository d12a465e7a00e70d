package oracle

import (
	"sync"
	"time"
)

// Degradation records one graceful-degradation occurrence on the valuation
// read path.
type Degradation struct {
	Module        string
	Asset         string
	Reason        string
	FallbackValue int64
	UsedFallback  bool
	Timestamp     time.Time
	Height        uint64
}

// DegradationStats aggregates the log. Counters only grow.
type DegradationStats struct {
	Total              uint64
	LastTime           time.Time
	LastModule         string
	LastReason         string
	CumulativeFallback int64
	AverageFallback    int64
}

// DegradationLog is a bounded, newest-first history of degradations plus
// aggregate stats.
type DegradationLog struct {
	mu     sync.RWMutex
	events []Degradation // newest at index 0
	limit  int
	stats  DegradationStats
}

// NewDegradationLog creates a log retaining at most limit events. Stats keep
// counting past the retention bound.
func NewDegradationLog(limit int) *DegradationLog {
	if limit <= 0 {
		limit = 256
	}
	return &DegradationLog{limit: limit}
}

// Record appends a degradation and updates the aggregate stats.
func (l *DegradationLog) Record(d Degradation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append([]Degradation{d}, l.events...)
	if len(l.events) > l.limit {
		l.events = l.events[:l.limit]
	}

	l.stats.Total++
	l.stats.LastTime = d.Timestamp
	l.stats.LastModule = d.Module
	l.stats.LastReason = d.Reason
	if d.UsedFallback {
		l.stats.CumulativeFallback += d.FallbackValue
	}
	l.stats.AverageFallback = l.stats.CumulativeFallback / int64(l.stats.Total)
}

// Recent returns up to n events, newest first.
func (l *DegradationLog) Recent(n int) []Degradation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Degradation, n)
	copy(out, l.events[:n])
	return out
}

// Stats returns a copy of the aggregate counters.
func (l *DegradationLog) Stats() DegradationStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}
