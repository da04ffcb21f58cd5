package storage

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
)

// Setup helper for buffer pool benchmarks
func setupBufferPool(b *testing.B, poolSize uint32, algorithm string) *BufferPoolManager {
	b.Helper()

	dm, err := NewDiskManager(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}

	replacer, err := NewReplacer(algorithm, int(poolSize), DefaultReplacerK)
	if err != nil {
		b.Fatal(err)
	}

	bpm, err := NewBufferPoolManagerWithReplacer(poolSize, dm, replacer)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { bpm.Close() })

	return bpm
}

// preallocate writes n pages to disk through the pool
func preallocate(b *testing.B, bpm *BufferPoolManager, n int) []PageID {
	b.Helper()
	pageIds := make([]PageID, n)
	for i := 0; i < n; i++ {
		page, err := bpm.NewPage()
		if err != nil {
			b.Fatal(err)
		}
		pageIds[i] = page.GetPageId()
		bpm.UnpinPage(pageIds[i], true)
	}
	if err := bpm.FlushAllPages(); err != nil {
		b.Fatal(err)
	}
	return pageIds
}

// Benchmark page allocation
func BenchmarkBufferPoolNewPage(b *testing.B) {
	bpm := setupBufferPool(b, 100, ReplacerLRUK)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		page, err := bpm.NewPage()
		if err != nil {
			b.Fatal(err)
		}
		bpm.UnpinPage(page.GetPageId(), false)
	}
}

// Benchmark page fetching (cache hits)
func BenchmarkBufferPoolFetchPageCacheHit(b *testing.B) {
	bpm := setupBufferPool(b, 100, ReplacerLRUK)

	page, _ := bpm.NewPage()
	pageId := page.GetPageId()
	bpm.UnpinPage(pageId, false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fetched, err := bpm.FetchPage(pageId, AccessLookup)
		if err != nil {
			b.Fatal(err)
		}
		bpm.UnpinPage(fetched.GetPageId(), false)
	}
}

// Benchmark random access against each policy. The working set is five
// times the pool, so most fetches evict.
func BenchmarkBufferPoolRandomAccess(b *testing.B) {
	for _, algorithm := range []string{ReplacerLRUK, ReplacerLRU} {
		b.Run(algorithm, func(b *testing.B) {
			bpm := setupBufferPool(b, 100, algorithm)
			pageIds := preallocate(b, bpm, 500)

			r := rand.New(rand.NewSource(42))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				page, err := bpm.FetchPage(pageIds[r.Intn(len(pageIds))], AccessLookup)
				if err != nil {
					b.Fatal(err)
				}
				bpm.UnpinPage(page.GetPageId(), false)
			}
			b.ReportMetric(bpm.GetMetrics().Snapshot().HitRate(), "hit-rate")
		})
	}
}

// Benchmark a hot set mixed with sequential scans. LRU-K should keep the hot
// pages resident while the scan passes through.
func BenchmarkBufferPoolScanResistance(b *testing.B) {
	for _, algorithm := range []string{ReplacerLRUK, ReplacerLRU} {
		b.Run(algorithm, func(b *testing.B) {
			bpm := setupBufferPool(b, 64, algorithm)
			pageIds := preallocate(b, bpm, 1000)
			hot := pageIds[:32]
			cold := pageIds[32:]

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				pageId, accessType := hot[i%len(hot)], AccessLookup
				if i%2 == 1 {
					pageId, accessType = cold[i%len(cold)], AccessScan
				}
				page, err := bpm.FetchPage(pageId, accessType)
				if err != nil {
					b.Fatal(err)
				}
				bpm.UnpinPage(page.GetPageId(), false)
			}
			b.ReportMetric(bpm.GetMetrics().Snapshot().HitRate(), "hit-rate")
		})
	}
}

// Benchmark buffer pool with different pool sizes
func BenchmarkBufferPoolSizes(b *testing.B) {
	for _, size := range []uint32{10, 100, 1000} {
		b.Run(fmt.Sprintf("PoolSize%d", size), func(b *testing.B) {
			bpm := setupBufferPool(b, size, ReplacerLRUK)
			pageIds := preallocate(b, bpm, 2000)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				page, err := bpm.FetchPage(pageIds[i%len(pageIds)], AccessScan)
				if err != nil {
					b.Fatal(err)
				}
				bpm.UnpinPage(page.GetPageId(), false)
			}
		})
	}
}
