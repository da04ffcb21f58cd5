package storage

// AccessHistory holds the last k access timestamps of one frame plus its
// evictable flag. Timestamps live in a ring buffer sized k at construction,
// so appending never reallocates.
type AccessHistory struct {
	ring      []Timestamp
	head      int // index of the oldest retained timestamp
	count     int
	evictable bool
}

// NewAccessHistory creates an empty, non-evictable history of depth k
func NewAccessHistory(k int) *AccessHistory {
	if k < 1 {
		k = 1
	}
	return &AccessHistory{
		ring: make([]Timestamp, k),
	}
}

// Append records a new access. Once k accesses are held the oldest is dropped.
// ts must not be smaller than anything appended before.
func (h *AccessHistory) Append(ts Timestamp) {
	k := len(h.ring)
	if h.count < k {
		h.ring[(h.head+h.count)%k] = ts
		h.count++
		return
	}
	// Full: overwrite the oldest slot and advance head.
	h.ring[h.head] = ts
	h.head = (h.head + 1) % k
}

// Len returns the number of retained timestamps
func (h *AccessHistory) Len() int {
	return h.count
}

// K returns the history depth
func (h *AccessHistory) K() int {
	return len(h.ring)
}

// BackwardKDistanceKey returns the k-th most recent access timestamp, or false
// when fewer than k accesses were seen (infinite backward k-distance).
//
// The key sorts inversely to the true distance: the smaller the key, the
// further back the k-th access lies.
func (h *AccessHistory) BackwardKDistanceKey() (Timestamp, bool) {
	if h.count < len(h.ring) {
		return 0, false
	}
	return h.ring[h.head], true
}

// MostRecentTimestamp returns the newest access, or 0 if none was recorded
func (h *AccessHistory) MostRecentTimestamp() Timestamp {
	if h.count == 0 {
		return 0
	}
	return h.ring[(h.head+h.count-1)%len(h.ring)]
}

// IsEvictable reports whether the frame may be chosen as a victim
func (h *AccessHistory) IsEvictable() bool {
	return h.evictable
}

// SetEvictable sets the evictable flag
func (h *AccessHistory) SetEvictable(evictable bool) {
	h.evictable = evictable
}

// Timestamps returns a copy of the retained timestamps, oldest first
func (h *AccessHistory) Timestamps() []Timestamp {
	out := make([]Timestamp, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.ring[(h.head+i)%len(h.ring)]
	}
	return out
}
