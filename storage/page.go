package storage

import "sync"

// PageSize is the size of a page on disk and in a buffer frame
const PageSize = 4096

// PageID identifies a page in a PageStore
type PageID uint32

// InvalidPageID marks an empty frame
const InvalidPageID = PageID(^uint32(0))

// Page is a buffer frame holding one page plus its bookkeeping.
// pinCount and isDirty are owned by the BufferPoolManager latch; the content
// latch protects data for readers and writers holding a pin.
type Page struct {
	pageId   PageID
	pinCount int32
	isDirty  bool
	data     [PageSize]byte
	latch    sync.RWMutex
}

func newFrame() *Page {
	return &Page{pageId: InvalidPageID}
}

// GetPageId returns the page ID
func (p *Page) GetPageId() PageID {
	return p.pageId
}

// GetPinCount returns the pin count
func (p *Page) GetPinCount() int32 {
	return p.pinCount
}

// IsDirty returns whether the page is dirty
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// Data returns the page content. Callers must hold a pin and the
// appropriate content latch.
func (p *Page) Data() []byte {
	return p.data[:]
}

// RLatch acquires the content latch for reading
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases the read latch
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// WLatch acquires the content latch for writing
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases the write latch
func (p *Page) WUnlatch() { p.latch.Unlock() }

// reset clears the frame for reuse
func (p *Page) reset() {
	p.pageId = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	clear(p.data[:])
}
