package storage

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultHistogramSize = 10000

// Histogram keeps the most recent latency samples in a fixed ring
type Histogram struct {
	mu      sync.Mutex
	samples []float64 // microseconds
	next    int
	full    bool
}

// NewHistogram keeps up to maxSize samples; 0 or less means defaultHistogramSize
func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = defaultHistogramSize
	}
	return &Histogram{samples: make([]float64, maxSize)}
}

// Record adds a latency sample (in microseconds), overwriting the oldest once full
func (h *Histogram) Record(latencyUs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = latencyUs
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.full = true
	}
}

// Count returns the number of retained samples
func (h *Histogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

func (h *Histogram) countLocked() int {
	if h.full {
		return len(h.samples)
	}
	return h.next
}

// Reset clears all samples
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.full = false
}

// HistogramSnapshot holds percentile statistics
type HistogramSnapshot struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64 // Median
	P95   float64
	P99   float64
}

// Snapshot captures current histogram statistics
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	sorted := make([]float64, h.countLocked())
	copy(sorted, h.samples[:len(sorted)])
	h.mu.Unlock()

	if len(sorted) == 0 {
		return HistogramSnapshot{}
	}
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return HistogramSnapshot{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

// percentile interpolates linearly over sorted samples
func percentile(sorted []float64, p float64) float64 {
	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Metrics counts buffer pool and replacer activity. Safe for concurrent use.
type Metrics struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	dirtyFlushes atomic.Uint64
	noVictim     atomic.Uint64 // Evict found nothing to reclaim
	accesses     atomic.Uint64
	scans        atomic.Uint64

	// microseconds; evict covers victim selection only
	fetch *Histogram
	flush *Histogram
	evict *Histogram

	since atomic.Int64 // unix nanos
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	CacheHits       uint64
	CacheMisses     uint64
	Evictions       uint64
	DirtyFlushes    uint64
	FailedEvictions uint64
	Accesses        uint64
	ScanAccesses    uint64

	FetchLatency HistogramSnapshot
	FlushLatency HistogramSnapshot
	EvictLatency HistogramSnapshot

	Uptime time.Duration
}

// HitRate is hits over all lookups, 0 before the first lookup
func (s MetricsSnapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		fetch: NewHistogram(0),
		flush: NewHistogram(0),
		evict: NewHistogram(0),
	}
	m.since.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) RecordCacheHit()       { m.hits.Add(1) }
func (m *Metrics) RecordCacheMiss()      { m.misses.Add(1) }
func (m *Metrics) RecordPageEviction()   { m.evictions.Add(1) }
func (m *Metrics) RecordDirtyPageFlush() { m.dirtyFlushes.Add(1) }
func (m *Metrics) RecordFailedEviction() { m.noVictim.Add(1) }

// RecordAccess counts an access handed to the replacer
func (m *Metrics) RecordAccess(accessType AccessType) {
	m.accesses.Add(1)
	if accessType == AccessScan {
		m.scans.Add(1)
	}
}

func (m *Metrics) RecordPageFetchLatency(d time.Duration) { observe(m.fetch, d) }
func (m *Metrics) RecordPageFlushLatency(d time.Duration) { observe(m.flush, d) }
func (m *Metrics) RecordEvictLatency(d time.Duration)     { observe(m.evict, d) }

func observe(h *Histogram, d time.Duration) {
	h.Record(float64(d.Microseconds()))
}

// Snapshot copies the counters and summarizes the latency histograms
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CacheHits:       m.hits.Load(),
		CacheMisses:     m.misses.Load(),
		Evictions:       m.evictions.Load(),
		DirtyFlushes:    m.dirtyFlushes.Load(),
		FailedEvictions: m.noVictim.Load(),
		Accesses:        m.accesses.Load(),
		ScanAccesses:    m.scans.Load(),
		FetchLatency:    m.fetch.Snapshot(),
		FlushLatency:    m.flush.Snapshot(),
		EvictLatency:    m.evict.Snapshot(),
		Uptime:          time.Since(time.Unix(0, m.since.Load())),
	}
}

// LogMetrics writes one info record with every counter and latency summary
func (m *Metrics) LogMetrics(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("buffer pool metrics",
		slog.Group("buffer_pool",
			slog.Uint64("cache_hits", s.CacheHits),
			slog.Uint64("cache_misses", s.CacheMisses),
			slog.Float64("cache_hit_rate", s.HitRate()),
			slog.Uint64("page_evictions", s.Evictions),
			slog.Uint64("failed_evictions", s.FailedEvictions),
			slog.Uint64("dirty_page_flushes", s.DirtyFlushes),
		),
		slog.Group("replacer",
			slog.Uint64("accesses", s.Accesses),
			slog.Uint64("scan_accesses", s.ScanAccesses),
		),
		slog.Group("latency_us",
			slog.Group("page_fetch", latencyAttrs(s.FetchLatency)...),
			slog.Group("page_flush", latencyAttrs(s.FlushLatency)...),
			slog.Group("evict", latencyAttrs(s.EvictLatency)...),
		),
		slog.Duration("uptime", s.Uptime),
	)
}

func latencyAttrs(h HistogramSnapshot) []any {
	return []any{
		slog.Int("count", h.Count),
		slog.Float64("mean", h.Mean),
		slog.Float64("p50", h.P50),
		slog.Float64("p99", h.P99),
		slog.Float64("max", h.Max),
	}
}

// Reset zeroes every counter and histogram and restarts the uptime
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{&m.hits, &m.misses, &m.evictions, &m.dirtyFlushes, &m.noVictim, &m.accesses, &m.scans} {
		c.Store(0)
	}
	m.fetch.Reset()
	m.flush.Reset()
	m.evict.Reset()
	m.since.Store(time.Now().UnixNano())
}
