package stream

import (
	"sync"
	"time"
)

// ReplayEntry is one broadcast frame held for reconnect gap recovery.
type ReplayEntry struct {
	Seq  int64
	Data []byte
	At   time.Time
}

// ReplayBuffer retains recent broadcast frames, bounded by both count
// and age. It also owns the global sequence counter, so sequence
// numbers are strictly increasing and gapless within the retained
// window.
type ReplayBuffer struct {
	mu       sync.Mutex
	entries  []ReplayEntry
	seq      int64
	maxCount int
	maxAge   time.Duration
	now      func() time.Time
}

// NewReplayBuffer creates a buffer holding at most maxCount entries,
// each for at most maxAge.
func NewReplayBuffer(maxCount int, maxAge time.Duration) *ReplayBuffer {
	if maxCount <= 0 {
		maxCount = 1000
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ReplayBuffer{
		maxCount: maxCount,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Add assigns the next sequence number to data, stores the frame, and
// enforces both bounds. data must not be mutated afterwards.
func (b *ReplayBuffer) Add(data []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	now := b.now()
	b.entries = append(b.entries, ReplayEntry{Seq: b.seq, Data: data, At: now})
	b.pruneLocked(now)
	return b.seq
}

// AddWith assigns the next sequence number, invokes build to produce
// the frame carrying it, and stores the result. Assignment and insert
// happen under one lock so buffer order always matches seq order.
func (b *ReplayBuffer) AddWith(build func(seq int64) []byte) (int64, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	data := build(b.seq)
	now := b.now()
	b.entries = append(b.entries, ReplayEntry{Seq: b.seq, Data: data, At: now})
	b.pruneLocked(now)
	return b.seq, data
}

// Since returns the retained frames with seq > lastSeq, ascending.
func (b *ReplayBuffer) Since(lastSeq int64) []ReplayEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())

	// Entries are already seq-ordered; find the first past lastSeq.
	i := 0
	for i < len(b.entries) && b.entries[i].Seq <= lastSeq {
		i++
	}
	out := make([]ReplayEntry, len(b.entries)-i)
	copy(out, b.entries[i:])
	return out
}

// Len reports the number of retained entries.
func (b *ReplayBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Seq reports the last assigned sequence number.
func (b *ReplayBuffer) Seq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

func (b *ReplayBuffer) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.maxAge)
	i := 0
	for i < len(b.entries) && b.entries[i].At.Before(cutoff) {
		i++
	}
	if over := len(b.entries) - i - b.maxCount; over > 0 {
		i += over
	}
	if i > 0 {
		b.entries = append(b.entries[:0], b.entries[i:]...)
	}
}
