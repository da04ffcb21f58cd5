package storage

import "fmt"

// LRUKReplacer implements the LRU-K replacement policy.
//
// The victim is the evictable frame with the largest backward k-distance, the
// time since its k-th most recent access. Frames with fewer than k recorded
// accesses have infinite distance and always go first; among those the one
// whose latest access is oldest wins. Remaining ties go to the smallest frame id.
//
// LRUKReplacer is not safe for concurrent use.
type LRUKReplacer struct {
	capacity  int
	k         int
	table     map[FrameID]*AccessHistory
	evictable int
}

// AccessSnapshot is a read-only view of one tracked frame
type AccessSnapshot struct {
	FrameID    FrameID
	Timestamps []Timestamp // oldest first
	Evictable  bool
}

// NewLRUKReplacer creates a replacer accepting frame ids in [0, capacity)
func NewLRUKReplacer(capacity int, k int) (*LRUKReplacer, error) {
	if capacity < 0 {
		return nil, ErrInvalidArgument("NewLRUKReplacer", fmt.Sprintf("capacity must be >= 0, got %d", capacity))
	}
	if k < 1 {
		return nil, ErrInvalidArgument("NewLRUKReplacer", fmt.Sprintf("k must be >= 1, got %d", k))
	}
	return &LRUKReplacer{
		capacity: capacity,
		k:        k,
		table:    make(map[FrameID]*AccessHistory, capacity),
	}, nil
}

// Capacity returns the number of frame ids the replacer accepts
func (r *LRUKReplacer) Capacity() int {
	return r.capacity
}

// K returns the history depth
func (r *LRUKReplacer) K() int {
	return r.k
}

// RecordAccess appends ts to the frame's history, creating it on first sight.
// The access type does not influence ordering.
func (r *LRUKReplacer) RecordAccess(frameID FrameID, ts Timestamp, _ AccessType) error {
	if !validFrame(frameID, r.capacity) {
		return ErrInvalidFrame("RecordAccess", frameID, r.capacity)
	}
	r.lookupOrCreate(frameID).Append(ts)
	return nil
}

// SetEvictable toggles whether the frame may be evicted and keeps Size in step.
// An unseen frame gets an empty history first.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) error {
	if !validFrame(frameID, r.capacity) {
		return ErrInvalidFrame("SetEvictable", frameID, r.capacity)
	}

	h := r.lookupOrCreate(frameID)
	if h.IsEvictable() == evictable {
		return nil
	}
	h.SetEvictable(evictable)
	if evictable {
		r.evictable++
	} else {
		r.evictable--
	}
	return nil
}

// Remove drops an evictable frame and its history regardless of its distance.
// Removing an untracked frame is a no-op.
func (r *LRUKReplacer) Remove(frameID FrameID) error {
	if !validFrame(frameID, r.capacity) {
		return ErrInvalidFrame("Remove", frameID, r.capacity)
	}

	h, ok := r.table[frameID]
	if !ok {
		return nil
	}
	if !h.IsEvictable() {
		return ErrFrameNotEvictable("Remove", frameID)
	}
	r.drop(frameID)
	return nil
}

// Evict picks the frame with the largest backward k-distance and drops it
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	if r.evictable == 0 {
		return 0, false
	}

	var (
		victim    FrameID
		victimKey Timestamp
		found     bool
		infinite  bool // whether victim came from the < k group
	)

	for frameID, h := range r.table {
		if !h.IsEvictable() {
			continue
		}

		key, finite := h.BackwardKDistanceKey()
		if !finite {
			key = h.MostRecentTimestamp()
		}

		switch {
		case !found:
		case !finite && !infinite:
			// infinite distance beats any finite one
		case finite && infinite:
			continue
		case key < victimKey:
		case key == victimKey && frameID < victim:
		default:
			continue
		}

		victim, victimKey, infinite, found = frameID, key, !finite, true
	}

	if !found {
		return 0, false
	}
	r.drop(victim)
	return victim, true
}

// Size returns the number of evictable frames
func (r *LRUKReplacer) Size() int {
	return r.evictable
}

// History returns a snapshot of a tracked frame
func (r *LRUKReplacer) History(frameID FrameID) (AccessSnapshot, bool) {
	h, ok := r.table[frameID]
	if !ok {
		return AccessSnapshot{}, false
	}
	return AccessSnapshot{
		FrameID:    frameID,
		Timestamps: h.Timestamps(),
		Evictable:  h.IsEvictable(),
	}, true
}

// Tracked returns the number of frames with a history, evictable or not
func (r *LRUKReplacer) Tracked() int {
	return len(r.table)
}

func (r *LRUKReplacer) lookupOrCreate(frameID FrameID) *AccessHistory {
	h, ok := r.table[frameID]
	if !ok {
		h = NewAccessHistory(r.k)
		r.table[frameID] = h
	}
	return h
}

// drop erases an evictable entry
func (r *LRUKReplacer) drop(frameID FrameID) {
	delete(r.table, frameID)
	r.evictable--
}
