package storage

import (
	"github.com/hashicorp/golang-lru/simplelru"
)

// lruEntry is the value stored per frame in the recency list
type lruEntry struct {
	evictable bool
	lastSeen  Timestamp
}

// LRUReplacer implements LRU (Least Recently Used) replacement policy.
// It is LRU-K with k = 1 and is kept as a baseline for comparison.
type LRUReplacer struct {
	capacity  int
	order     *simplelru.LRU // frameID -> *lruEntry, oldest access first
	evictable int
}

// NewLRUReplacer creates a new LRU replacer
func NewLRUReplacer(capacity int) (*LRUReplacer, error) {
	if capacity < 0 {
		return nil, ErrInvalidArgument("NewLRUReplacer", "capacity must be >= 0")
	}

	// Every valid frame fits, so the list never evicts on its own.
	size := capacity
	if size == 0 {
		size = 1
	}
	order, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, NewStorageError(ErrCodeInternal, "NewLRUReplacer", "failed to create recency list", err)
	}

	return &LRUReplacer{
		capacity: capacity,
		order:    order,
	}, nil
}

// RecordAccess moves the frame to the most recently used position
func (lru *LRUReplacer) RecordAccess(frameID FrameID, ts Timestamp, _ AccessType) error {
	if !validFrame(frameID, lru.capacity) {
		return ErrInvalidFrame("RecordAccess", frameID, lru.capacity)
	}

	// Get refreshes recency for an existing frame
	if v, ok := lru.order.Get(frameID); ok {
		v.(*lruEntry).lastSeen = ts
		return nil
	}
	lru.order.Add(frameID, &lruEntry{lastSeen: ts})
	return nil
}

// SetEvictable marks a frame as pinned or unpinned
func (lru *LRUReplacer) SetEvictable(frameID FrameID, evictable bool) error {
	if !validFrame(frameID, lru.capacity) {
		return ErrInvalidFrame("SetEvictable", frameID, lru.capacity)
	}

	v, ok := lru.order.Peek(frameID)
	if !ok {
		v = &lruEntry{}
		lru.order.Add(frameID, v)
	}
	entry := v.(*lruEntry)
	if entry.evictable == evictable {
		return nil
	}
	entry.evictable = evictable
	if evictable {
		lru.evictable++
	} else {
		lru.evictable--
	}
	return nil
}

// Remove drops an evictable frame from the replacer
func (lru *LRUReplacer) Remove(frameID FrameID) error {
	if !validFrame(frameID, lru.capacity) {
		return ErrInvalidFrame("Remove", frameID, lru.capacity)
	}

	v, ok := lru.order.Peek(frameID)
	if !ok {
		return nil
	}
	if !v.(*lruEntry).evictable {
		return ErrFrameNotEvictable("Remove", frameID)
	}
	lru.order.Remove(frameID)
	lru.evictable--
	return nil
}

// Evict removes the least recently used evictable frame
func (lru *LRUReplacer) Evict() (FrameID, bool) {
	if lru.evictable == 0 {
		return 0, false
	}

	// Keys are ordered oldest to newest
	for _, key := range lru.order.Keys() {
		v, _ := lru.order.Peek(key)
		if !v.(*lruEntry).evictable {
			continue
		}
		frameID := key.(FrameID)
		lru.order.Remove(key)
		lru.evictable--
		return frameID, true
	}
	return 0, false
}

// Size returns the number of evictable frames
func (lru *LRUReplacer) Size() int {
	return lru.evictable
}
