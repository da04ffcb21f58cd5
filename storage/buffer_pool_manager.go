package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// BufferPoolManager caches pages from a PageStore in a fixed set of frames.
//
// A single latch serializes every operation, including each call into the
// replacer, so victim selection and the page table update that follows are
// observed atomically.
type BufferPoolManager struct {
	poolSize  uint32
	frames    []*Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	store     PageStore
	replacer  Replacer
	clock     Clock
	metrics   *Metrics
	logger    *slog.Logger

	logMetricsOnClose bool
	latch             sync.Mutex
}

// NewBufferPoolManager creates a buffer pool using LRU-K with the default k
func NewBufferPoolManager(poolSize uint32, store PageStore) (*BufferPoolManager, error) {
	replacer, err := NewLRUKReplacer(int(poolSize), DefaultReplacerK)
	if err != nil {
		return nil, err
	}
	return NewBufferPoolManagerWithReplacer(poolSize, store, replacer)
}

// NewBufferPoolManagerWithReplacer creates a buffer pool with a specific
// replacement policy. The replacer must accept frame ids in [0, poolSize).
func NewBufferPoolManagerWithReplacer(poolSize uint32, store PageStore, replacer Replacer) (*BufferPoolManager, error) {
	if poolSize == 0 {
		return nil, fmt.Errorf("pool size must be greater than 0")
	}
	if store == nil || replacer == nil {
		return nil, fmt.Errorf("page store and replacer are required")
	}

	bpm := &BufferPoolManager{
		poolSize:  poolSize,
		frames:    make([]*Page, poolSize),
		pageTable: make(map[PageID]FrameID, poolSize),
		freeList:  make([]FrameID, 0, poolSize),
		store:     store,
		replacer:  replacer,
		clock:     NewLogicalClock(),
		metrics:   NewMetrics(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for i := uint32(0); i < poolSize; i++ {
		bpm.frames[i] = newFrame()
		bpm.freeList = append(bpm.freeList, FrameID(i))
	}

	return bpm, nil
}

// OpenBufferPool builds the page store, replacer and clock described by cfg
func OpenBufferPool(cfg *Config, logger *slog.Logger) (*BufferPoolManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store PageStore
	switch cfg.DiskBackend {
	case DiskBackendMmap:
		dm, err := NewMmapDiskManager(cfg.DataFile)
		if err != nil {
			return nil, err
		}
		store = dm
	default:
		compression, err := ParseCompressionType(cfg.Compression)
		if err != nil {
			return nil, err
		}
		dm, err := NewDiskManagerWithCompression(cfg.DataFile, compression)
		if err != nil {
			return nil, err
		}
		store = dm
	}

	replacer, err := NewReplacer(cfg.Replacer, int(cfg.PoolSize), cfg.ReplacerK)
	if err != nil {
		store.Close()
		return nil, err
	}

	clock, err := NewClock(cfg.Clock)
	if err != nil {
		store.Close()
		return nil, err
	}

	bpm, err := NewBufferPoolManagerWithReplacer(cfg.PoolSize, store, replacer)
	if err != nil {
		store.Close()
		return nil, err
	}
	bpm.clock = clock
	bpm.logMetricsOnClose = cfg.EnableMetrics
	if logger != nil {
		bpm.logger = logger
	}

	bpm.logger.Info("buffer pool opened",
		slog.Uint64("pool_size", uint64(cfg.PoolSize)),
		slog.String("replacer", cfg.Replacer),
		slog.Int("k", cfg.ReplacerK),
		slog.String("disk_backend", cfg.DiskBackend),
		slog.String("compression", cfg.Compression),
	)
	return bpm, nil
}

// SetLogger replaces the logger
func (bpm *BufferPoolManager) SetLogger(logger *slog.Logger) {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()
	bpm.logger = logger
}

// SetClock replaces the timestamp source. Only safe before first use, since
// timestamps must never go backwards.
func (bpm *BufferPoolManager) SetClock(clock Clock) {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()
	bpm.clock = clock
}

// GetPoolSize returns the pool size
func (bpm *BufferPoolManager) GetPoolSize() uint32 {
	return bpm.poolSize
}

// GetMetrics returns the buffer pool metrics
func (bpm *BufferPoolManager) GetMetrics() *Metrics {
	return bpm.metrics
}

// NewPage allocates a page in the store and pins it in a frame
func (bpm *BufferPoolManager) NewPage() (*Page, error) {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	frameId, err := bpm.acquireFrame("NewPage")
	if err != nil {
		return nil, err
	}

	pageId, err := bpm.store.AllocatePage()
	if err != nil {
		bpm.freeList = append(bpm.freeList, frameId)
		return nil, fmt.Errorf("failed to allocate page: %w", err)
	}

	page := bpm.frames[frameId]
	page.pageId = pageId
	page.pinCount = 1
	bpm.pageTable[pageId] = frameId

	if err := bpm.pin(frameId, AccessUnknown); err != nil {
		return nil, err
	}
	return page, nil
}

// FetchPage returns the page pinned, reading it from the store on a miss
func (bpm *BufferPoolManager) FetchPage(pageId PageID, accessType AccessType) (*Page, error) {
	start := time.Now()
	defer func() { bpm.metrics.RecordPageFetchLatency(time.Since(start)) }()

	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	if frameId, ok := bpm.pageTable[pageId]; ok {
		bpm.metrics.RecordCacheHit()
		page := bpm.frames[frameId]
		page.pinCount++
		if err := bpm.pin(frameId, accessType); err != nil {
			return nil, err
		}
		return page, nil
	}

	bpm.metrics.RecordCacheMiss()

	frameId, err := bpm.acquireFrame("FetchPage")
	if err != nil {
		return nil, err
	}

	page := bpm.frames[frameId]
	if err := bpm.store.ReadPage(pageId, page.data[:]); err != nil {
		page.reset()
		bpm.freeList = append(bpm.freeList, frameId)
		return nil, fmt.Errorf("failed to read page %d: %w", pageId, err)
	}

	page.pageId = pageId
	page.pinCount = 1
	bpm.pageTable[pageId] = frameId

	if err := bpm.pin(frameId, accessType); err != nil {
		return nil, err
	}
	return page, nil
}

// UnpinPage drops one pin and optionally marks the page dirty.
// The frame becomes evictable when the last pin is released.
func (bpm *BufferPoolManager) UnpinPage(pageId PageID, isDirty bool) error {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	frameId, ok := bpm.pageTable[pageId]
	if !ok {
		return ErrPageNotFound("UnpinPage", pageId)
	}

	page := bpm.frames[frameId]
	if page.pinCount <= 0 {
		return ErrInvalidPin("UnpinPage", pageId)
	}

	page.pinCount--
	if isDirty {
		page.isDirty = true
	}

	if page.pinCount == 0 {
		if err := bpm.replacer.SetEvictable(frameId, true); err != nil {
			return NewStorageError(ErrCodeInternal, "UnpinPage", "replacer rejected frame", err)
		}
	}
	return nil
}

// FlushPage writes a resident page to the store regardless of its dirty flag
func (bpm *BufferPoolManager) FlushPage(pageId PageID) error {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	frameId, ok := bpm.pageTable[pageId]
	if !ok {
		return ErrPageNotFound("FlushPage", pageId)
	}

	if err := bpm.flushFrame(bpm.frames[frameId]); err != nil {
		return err
	}
	return bpm.store.Sync()
}

// FlushAllPages writes every dirty resident page and syncs the store once
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	var flushErrors []error
	for _, page := range bpm.frames {
		if page.pageId == InvalidPageID || !page.isDirty {
			continue
		}
		if err := bpm.flushFrame(page); err != nil {
			flushErrors = append(flushErrors, err)
		}
	}

	if len(flushErrors) > 0 {
		return fmt.Errorf("failed to flush %d pages: %w", len(flushErrors), errors.Join(flushErrors...))
	}
	return bpm.store.Sync()
}

// DeletePage drops an unpinned page from the pool and frees it in the store
func (bpm *BufferPoolManager) DeletePage(pageId PageID) error {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	frameId, ok := bpm.pageTable[pageId]
	if !ok {
		return bpm.store.DeallocatePage(pageId)
	}

	page := bpm.frames[frameId]
	if page.pinCount > 0 {
		return ErrPagePinned("DeletePage", pageId, page.pinCount)
	}

	if err := bpm.replacer.Remove(frameId); err != nil {
		return NewStorageError(ErrCodeInternal, "DeletePage", "replacer rejected frame", err)
	}

	delete(bpm.pageTable, pageId)
	page.reset()
	bpm.freeList = append(bpm.freeList, frameId)

	return bpm.store.DeallocatePage(pageId)
}

// ResidentPages returns the number of pages currently cached
func (bpm *BufferPoolManager) ResidentPages() int {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()
	return len(bpm.pageTable)
}

// EvictableFrames returns the replacer size
func (bpm *BufferPoolManager) EvictableFrames() int {
	bpm.latch.Lock()
	defer bpm.latch.Unlock()
	return bpm.replacer.Size()
}

// Close flushes dirty pages and closes the store
func (bpm *BufferPoolManager) Close() error {
	flushErr := bpm.FlushAllPages()

	bpm.latch.Lock()
	defer bpm.latch.Unlock()

	if bpm.logMetricsOnClose {
		bpm.metrics.LogMetrics(bpm.logger)
	}
	if err := bpm.store.Close(); err != nil {
		return errors.Join(flushErr, err)
	}
	return flushErr
}

// pin records an access and marks the frame non-evictable. Caller holds latch.
func (bpm *BufferPoolManager) pin(frameId FrameID, accessType AccessType) error {
	if err := bpm.replacer.RecordAccess(frameId, bpm.clock.Now(), accessType); err != nil {
		return NewStorageError(ErrCodeInternal, "pin", "replacer rejected frame", err)
	}
	if err := bpm.replacer.SetEvictable(frameId, false); err != nil {
		return NewStorageError(ErrCodeInternal, "pin", "replacer rejected frame", err)
	}
	bpm.metrics.RecordAccess(accessType)
	return nil
}

// acquireFrame takes a free frame or reclaims the replacer's victim.
// Caller holds latch.
func (bpm *BufferPoolManager) acquireFrame(op string) (FrameID, error) {
	if n := len(bpm.freeList); n > 0 {
		frameId := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameId, nil
	}

	start := time.Now()
	frameId, ok := bpm.replacer.Evict()
	bpm.metrics.RecordEvictLatency(time.Since(start))
	if !ok {
		bpm.metrics.RecordFailedEviction()
		return 0, ErrNoFreeFrames(op)
	}

	victim := bpm.frames[frameId]
	if victim.isDirty {
		bpm.metrics.RecordDirtyPageFlush()
		if err := bpm.flushFrame(victim); err != nil {
			// Hand the frame back so the page stays reachable
			bpm.restoreVictim(frameId)
			bpm.logger.Warn("failed to flush victim",
				slog.Uint64("page_id", uint64(victim.pageId)),
				slog.Int("frame_id", int(frameId)),
				slog.Any("error", err),
			)
			return 0, fmt.Errorf("failed to flush dirty page: %w", err)
		}
	}

	bpm.logger.Debug("evicted page",
		slog.Uint64("page_id", uint64(victim.pageId)),
		slog.Int("frame_id", int(frameId)),
	)

	delete(bpm.pageTable, victim.pageId)
	victim.reset()
	bpm.metrics.RecordPageEviction()

	return frameId, nil
}

// restoreVictim re-registers an evicted frame. Its access history restarts.
func (bpm *BufferPoolManager) restoreVictim(frameId FrameID) {
	err := bpm.replacer.RecordAccess(frameId, bpm.clock.Now(), AccessUnknown)
	if err == nil {
		err = bpm.replacer.SetEvictable(frameId, true)
	}
	if err != nil {
		bpm.logger.Warn("failed to restore victim",
			slog.Int("frame_id", int(frameId)),
			slog.Any("error", err),
		)
	}
}

// flushFrame writes one frame to the store. Caller holds latch.
func (bpm *BufferPoolManager) flushFrame(page *Page) error {
	start := time.Now()
	if err := bpm.store.WritePage(page.pageId, page.data[:]); err != nil {
		return err
	}
	page.isDirty = false
	bpm.metrics.RecordPageFlushLatency(time.Since(start))
	return nil
}
