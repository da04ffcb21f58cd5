//go:build linux || darwin || freebsd

package storage

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapDiskManager provides zero-copy disk access using memory-mapped files
type MmapDiskManager struct {
	file       *os.File
	mmapData   []byte
	fileSize   int64
	nextPageId PageID
	freePages  []PageID
	freed      map[PageID]struct{} // mirrors freePages
	mutex      sync.RWMutex
}

const (
	// Initial mapping: 256 pages (1MB)
	InitialFileSize = 256 * PageSize
	// Grow by 256 pages when we run out of space
	FileGrowSize = 256 * PageSize
)

// MmapStats describes the mapping
type MmapStats struct {
	FileSize   int64
	NextPageId PageID
	FreePages  int
}

// NewMmapDiskManager maps fileName, creating it if needed. The file is padded
// to at least InitialFileSize while open; Close trims it back to the last
// allocated page, so a reopened file resumes at its real high-water mark.
// A file that was never closed keeps its padding, and every page in it
// counts as allocated.
func NewMmapDiskManager(fileName string) (*MmapDiskManager, error) {
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open/create file %s: %w", fileName, err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	existing := fileInfo.Size()
	fileSize := existing
	if fileSize < InitialFileSize {
		if err := file.Truncate(InitialFileSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to grow file: %w", err)
		}
		fileSize = InitialFileSize
	}

	dm := &MmapDiskManager{
		file:       file,
		fileSize:   fileSize,
		nextPageId: PageID((existing + PageSize - 1) / PageSize),
		freed:      make(map[PageID]struct{}),
	}

	if err := dm.createMapping(); err != nil {
		file.Close()
		return nil, err
	}

	return dm, nil
}

// createMapping maps the whole file shared read-write
func (dm *MmapDiskManager) createMapping() error {
	data, err := unix.Mmap(int(dm.file.Fd()), 0, int(dm.fileSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	dm.mmapData = data
	return nil
}

// AllocatePage allocates a new page and returns its page ID
func (dm *MmapDiskManager) AllocatePage() (PageID, error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if n := len(dm.freePages); n > 0 {
		pageId := dm.freePages[n-1]
		dm.freePages = dm.freePages[:n-1]
		delete(dm.freed, pageId)
		return pageId, nil
	}
	if dm.mmapData == nil {
		return 0, errMmapClosed("AllocatePage")
	}

	pageId := dm.nextPageId
	if int64(pageId+1)*PageSize > dm.fileSize {
		if err := dm.growFile(); err != nil {
			return 0, err
		}
	}

	dm.nextPageId++
	return pageId, nil
}

// growFile expands the file and recreates the mapping. Caller holds mutex.
func (dm *MmapDiskManager) growFile() error {
	if dm.mmapData != nil {
		if err := unix.Munmap(dm.mmapData); err != nil {
			return fmt.Errorf("failed to unmap file: %w", err)
		}
		dm.mmapData = nil
	}

	newSize := dm.fileSize + FileGrowSize
	if err := dm.file.Truncate(newSize); err != nil {
		// Restore the old mapping so the manager stays usable
		if mapErr := dm.createMapping(); mapErr != nil {
			return fmt.Errorf("failed to grow file: %w (remap: %v)", err, mapErr)
		}
		return fmt.Errorf("failed to grow file: %w", err)
	}

	dm.fileSize = newSize
	return dm.createMapping()
}

// DeallocatePage makes the id available to a later AllocatePage
func (dm *MmapDiskManager) DeallocatePage(pageId PageID) error {
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

// ReadPage copies a page out of the mapping
func (dm *MmapDiskManager) ReadPage(pageId PageID, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("page buffer must be exactly %d bytes, got %d", PageSize, len(dst))
	}

	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	offset, err := dm.offset("ReadPage", pageId)
	if err != nil {
		return err
	}
	copy(dst, dm.mmapData[offset:offset+PageSize])
	return nil
}

// WritePage copies a page into the mapping; Sync makes it durable
func (dm *MmapDiskManager) WritePage(pageId PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(data))
	}

	// Writers only touch their own page range, so the read lock is enough
	// to keep the mapping from being replaced underneath them.
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	offset, err := dm.offset("WritePage", pageId)
	if err != nil {
		return err
	}
	copy(dm.mmapData[offset:offset+PageSize], data)
	return nil
}

func (dm *MmapDiskManager) offset(op string, pageId PageID) (int64, error) {
	if dm.mmapData == nil {
		return 0, errMmapClosed(op)
	}
	if pageId >= dm.nextPageId {
		return 0, NewStorageError(ErrCodeInvalidPageID, op, fmt.Sprintf("page %d was never allocated", pageId), nil)
	}
	offset := int64(pageId) * PageSize
	if offset+PageSize > dm.fileSize {
		return 0, NewStorageError(ErrCodeInvalidPageID, op, fmt.Sprintf("page %d out of bounds (file size: %d)", pageId, dm.fileSize), nil)
	}
	return offset, nil
}

// Sync flushes the mapping to disk
func (dm *MmapDiskManager) Sync() error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.mmapData == nil {
		return nil
	}
	if err := unix.Msync(dm.mmapData, unix.MS_SYNC); err != nil {
		return ErrDiskWrite("Sync", err)
	}
	return nil
}

// GetStats returns mapping statistics
func (dm *MmapDiskManager) GetStats() MmapStats {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	return MmapStats{
		FileSize:   dm.fileSize,
		NextPageId: dm.nextPageId,
		FreePages:  len(dm.freePages),
	}
}

// Close syncs, unmaps and closes the file
func (dm *MmapDiskManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	var firstErr error
	if dm.mmapData != nil {
		if err := unix.Msync(dm.mmapData, unix.MS_SYNC); err != nil {
			firstErr = fmt.Errorf("failed to sync mapping: %w", err)
		}
		if err := unix.Munmap(dm.mmapData); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unmap file: %w", err)
		}
		dm.mmapData = nil
	}
	if dm.file != nil {
		// Drop the padding past the last allocated page
		if err := dm.file.Truncate(int64(dm.nextPageId) * PageSize); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to trim file: %w", err)
		}
		if err := dm.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		dm.file = nil
	}
	return firstErr
}

func errMmapClosed(op string) *StorageError {
	return NewStorageError(ErrCodeInternal, op, "disk manager is closed", nil)
}
