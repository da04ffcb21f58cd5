package storage

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestMetricsCreation(t *testing.T) {
	s := NewMetrics().Snapshot()

	if s.CacheHits != 0 || s.CacheMisses != 0 {
		t.Errorf("Expected zero counters, got %+v", s)
	}
	if s.FetchLatency.Count != 0 {
		t.Errorf("Expected empty fetch histogram, got %d samples", s.FetchLatency.Count)
	}
}

func TestCacheMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	s := m.Snapshot()
	if s.CacheHits != 2 {
		t.Errorf("Expected 2 cache hits, got %d", s.CacheHits)
	}
	if s.CacheMisses != 1 {
		t.Errorf("Expected 1 cache miss, got %d", s.CacheMisses)
	}

	expected := 2.0 / 3.0
	if hitRate := s.HitRate(); hitRate < expected-0.01 || hitRate > expected+0.01 {
		t.Errorf("Expected hit rate %.2f, got %.2f", expected, hitRate)
	}
}

func TestPageEvictionMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordPageEviction()
	m.RecordPageEviction()
	m.RecordDirtyPageFlush()
	m.RecordFailedEviction()

	s := m.Snapshot()
	if s.Evictions != 2 {
		t.Errorf("Expected 2 page evictions, got %d", s.Evictions)
	}
	if s.DirtyFlushes != 1 {
		t.Errorf("Expected 1 dirty page flush, got %d", s.DirtyFlushes)
	}
	if s.FailedEvictions != 1 {
		t.Errorf("Expected 1 failed eviction, got %d", s.FailedEvictions)
	}
}

func TestAccessMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordAccess(AccessLookup)
	m.RecordAccess(AccessScan)
	m.RecordAccess(AccessScan)
	m.RecordAccess(AccessIndex)

	s := m.Snapshot()
	if s.Accesses != 4 {
		t.Errorf("Expected 4 accesses, got %d", s.Accesses)
	}
	if s.ScanAccesses != 2 {
		t.Errorf("Expected 2 scan accesses, got %d", s.ScanAccesses)
	}
}

func TestMetricsLatencyRecording(t *testing.T) {
	m := NewMetrics()

	m.RecordPageFetchLatency(100 * time.Microsecond)
	m.RecordPageFetchLatency(300 * time.Microsecond)
	m.RecordPageFlushLatency(2 * time.Millisecond)
	m.RecordEvictLatency(5 * time.Microsecond)

	s := m.Snapshot()
	if s.FetchLatency.Count != 2 || s.FetchLatency.Mean != 200 {
		t.Errorf("Unexpected fetch latency: %+v", s.FetchLatency)
	}
	if s.FlushLatency.Max != 2000 {
		t.Errorf("Expected flush max 2000us, got %.2f", s.FlushLatency.Max)
	}
	if s.EvictLatency.Count != 1 {
		t.Errorf("Expected 1 evict sample, got %d", s.EvictLatency.Count)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordPageEviction()
	m.RecordAccess(AccessScan)
	m.RecordPageFetchLatency(time.Millisecond)

	m.Reset()

	if s := m.Snapshot(); s != (MetricsSnapshot{Uptime: s.Uptime}) {
		t.Errorf("Expected zero snapshot after reset, got %+v", s)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)

	if up := m.Snapshot().Uptime; up < 5*time.Millisecond {
		t.Errorf("Expected uptime >= 5ms, got %v", up)
	}
}

func TestMetricsLogging(t *testing.T) {
	m := NewMetrics()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordAccess(AccessScan)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m.LogMetrics(logger)

	out := buf.String()
	for _, want := range []string{"buffer_pool.cache_hits=1", "replacer.scan_accesses=1", "latency_us.page_fetch.count=0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output missing %q: %s", want, out)
		}
	}
}

func TestCacheHitRateEdgeCases(t *testing.T) {
	m := NewMetrics()

	if rate := m.Snapshot().HitRate(); rate != 0.0 {
		t.Errorf("Expected 0.0 hit rate with no operations, got %.2f", rate)
	}

	m.RecordCacheHit()
	m.RecordCacheHit()
	if rate := m.Snapshot().HitRate(); rate != 1.0 {
		t.Errorf("Expected 1.0 hit rate with only hits, got %.2f", rate)
	}

	m.Reset()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	if rate := m.Snapshot().HitRate(); rate != 0.0 {
		t.Errorf("Expected 0.0 hit rate with only misses, got %.2f", rate)
	}
}
