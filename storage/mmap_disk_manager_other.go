//go:build !(linux || darwin || freebsd)

package storage

import "errors"

// MmapDiskManager is only available on unix platforms
type MmapDiskManager struct {
	PageStore
}

// NewMmapDiskManager reports that memory-mapped storage is unsupported here
func NewMmapDiskManager(fileName string) (*MmapDiskManager, error) {
	return nil, errors.New("mmap disk manager is not supported on this platform")
}
