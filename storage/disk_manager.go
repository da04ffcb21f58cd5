package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// PageStore persists pages for the buffer pool
type PageStore interface {
	AllocatePage() (PageID, error)
	DeallocatePage(pageID PageID) error
	ReadPage(pageID PageID, dst []byte) error
	WritePage(pageID PageID, data []byte) error
	Sync() error
	Close() error
}

// DiskManager stores pages in fixed-size slots of a single file.
// With compression enabled every slot carries the codec header, so slots
// grow to SlotSize and only the encoded bytes are written.
type DiskManager struct {
	file       *os.File
	nextPageId PageID
	freePages  []PageID
	freed      map[PageID]struct{} // mirrors freePages
	codec      *PageCodec // nil when pages are stored raw
	slot       []byte
	slotSize   int64
	mutex      sync.Mutex
}

// NewDiskManager creates a new disk manager that manages pages in a file
func NewDiskManager(fileName string) (*DiskManager, error) {
	return NewDiskManagerWithCompression(fileName, CompressionNone)
}

// NewDiskManagerWithCompression creates a disk manager that compresses pages
// with the given algorithm. A file must always be reopened with the same
// setting it was written with.
func NewDiskManagerWithCompression(fileName string, compression CompressionType) (*DiskManager, error) {
	var codec *PageCodec
	slotSize := int64(PageSize)
	if compression != CompressionNone {
		var err error
		if codec, err = NewPageCodec(compression); err != nil {
			return nil, err
		}
		slotSize = SlotSize
	}

	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create file %s: %w", fileName, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &DiskManager{
		file:       file,
		nextPageId: PageID((info.Size() + slotSize - 1) / slotSize),
		freed:      make(map[PageID]struct{}),
		codec:      codec,
		slot:       make([]byte, slotSize),
		slotSize:   slotSize,
	}, nil
}

// AllocatePage returns a page id, reusing deallocated ones first
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if n := len(dm.freePages); n > 0 {
		pageId := dm.freePages[n-1]
		dm.freePages = dm.freePages[:n-1]
		delete(dm.freed, pageId)
		return pageId, nil
	}

	pageId := dm.nextPageId
	dm.nextPageId++
	return pageId, nil
}

// DeallocatePage makes the id available to a later AllocatePage. Freeing an
// id twice is rejected.
func (dm *DiskManager) DeallocatePage(pageId PageID) error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if pageId >= dm.nextPageId {
		return NewStorageError(ErrCodeInvalidPageID, "DeallocatePage", fmt.Sprintf("page %d was never allocated", pageId), nil)
	}
	if _, ok := dm.freed[pageId]; ok {
		return NewStorageError(ErrCodeInvalidPageID, "DeallocatePage", fmt.Sprintf("page %d is already free", pageId), nil)
	}
	dm.freePages = append(dm.freePages, pageId)
	dm.freed[pageId] = struct{}{}
	return nil
}

// ReadPage reads a page into dst, which must be PageSize bytes.
// Allocated pages that were never written read back as zeros.
func (dm *DiskManager) ReadPage(pageId PageID, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("page buffer must be exactly %d bytes, got %d", PageSize, len(dst))
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if pageId >= dm.nextPageId {
		return NewStorageError(ErrCodeInvalidPageID, "ReadPage", fmt.Sprintf("page %d was never allocated", pageId), nil)
	}

	slot := dm.slot
	n, err := dm.file.ReadAt(slot, int64(pageId)*dm.slotSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return ErrDiskRead("ReadPage", fmt.Errorf("page %d: %w", pageId, err))
	}
	clear(slot[n:])

	if dm.codec == nil {
		copy(dst, slot)
		return nil
	}

	// A slot that was never written has no header
	if !HasSlotHeader(slot) {
		if isZero(slot) {
			clear(dst)
			return nil
		}
		return ErrPageCorrupted("ReadPage", pageId, errors.New("missing page header"))
	}
	if err := dm.codec.Decode(slot, dst); err != nil {
		return ErrPageCorrupted("ReadPage", pageId, err)
	}
	return nil
}

// WritePage writes a page to disk at the specified page ID
func (dm *DiskManager) WritePage(pageId PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if pageId >= dm.nextPageId {
		return NewStorageError(ErrCodeInvalidPageID, "WritePage", fmt.Sprintf("page %d was never allocated", pageId), nil)
	}

	out := data
	if dm.codec != nil {
		n, err := dm.codec.Encode(data, dm.slot)
		if err != nil {
			return ErrDiskWrite("WritePage", err)
		}
		out = dm.slot[:n]
	}

	if _, err := dm.file.WriteAt(out, int64(pageId)*dm.slotSize); err != nil {
		return ErrDiskWrite("WritePage", fmt.Errorf("page %d: %w", pageId, err))
	}
	return nil
}

// Sync flushes written pages to stable storage
func (dm *DiskManager) Sync() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	return dm.file.Sync()
}

// GetCompressionStats returns a copy of the codec counters; all zero when
// pages are stored raw
func (dm *DiskManager) GetCompressionStats() CodecStats {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	if dm.codec == nil {
		return CodecStats{}
	}
	return dm.codec.Stats()
}

// Close closes the disk manager and its underlying file
func (dm *DiskManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		dm.file = nil
		return err
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
