package storage

import "fmt"

// FrameID identifies a slot in the buffer pool, valid range [0, capacity)
type FrameID int32

// Timestamp is a point on the caller's non-decreasing clock
type Timestamp uint64

// AccessType describes why a frame was touched
type AccessType uint8

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// String returns the access type name
func (a AccessType) String() string {
	switch a {
	case AccessLookup:
		return "lookup"
	case AccessScan:
		return "scan"
	case AccessIndex:
		return "index"
	default:
		return "unknown"
	}
}

// ParseAccessType parses the names produced by String
func ParseAccessType(s string) (AccessType, error) {
	switch s {
	case "", "unknown":
		return AccessUnknown, nil
	case "lookup":
		return AccessLookup, nil
	case "scan":
		return AccessScan, nil
	case "index":
		return AccessIndex, nil
	}
	return AccessUnknown, fmt.Errorf("unknown access type %q", s)
}

// Replacer is a page replacement policy over a fixed set of frames.
//
// Implementations are not safe for concurrent use. The caller must serialize
// every call, and must hold the same lock across Evict and the page table
// update that follows it.
type Replacer interface {
	// RecordAccess notes that frameID was accessed at ts
	RecordAccess(frameID FrameID, ts Timestamp, accessType AccessType) error

	// SetEvictable marks a frame as a legal victim (unpinned) or not (pinned)
	SetEvictable(frameID FrameID, evictable bool) error

	// Remove drops an evictable frame and its history
	Remove(frameID FrameID) error

	// Evict selects a victim, drops it, and returns its id.
	// Returns false if no frame is evictable.
	Evict() (FrameID, bool)

	// Size returns the number of evictable frames
	Size() int
}

const (
	ReplacerLRUK = "lru-k"
	ReplacerLRU  = "lru"

	DefaultReplacerK = 2
)

// NewReplacer creates a replacer based on the specified algorithm
func NewReplacer(algorithm string, capacity int, k int) (Replacer, error) {
	switch algorithm {
	case ReplacerLRUK, "lruk", "":
		r, err := NewLRUKReplacer(capacity, k)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ReplacerLRU:
		r, err := NewLRUReplacer(capacity)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, ErrInvalidArgument("NewReplacer", fmt.Sprintf("unknown replacer %q", algorithm))
	}
}

func validFrame(frameID FrameID, capacity int) bool {
	return frameID >= 0 && int(frameID) < capacity
}
