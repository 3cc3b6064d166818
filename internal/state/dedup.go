package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SeenTracker deduplicates listing source ids within a single run using a
// Bloom filter backed by an exact set. A listing can drift across result
// pages between navigations; processing it once per run keeps counters honest.
type SeenTracker struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{} // For exact matching when Bloom filter might give false positives
	count  int
}

// NewSeenTracker creates a new tracker sized for the expected listing count.
func NewSeenTracker(estimatedItems int) *SeenTracker {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &SeenTracker{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add records a source id.
func (t *SeenTracker) Add(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Only increment count if the id is new
	if _, exists := t.exact[id]; !exists {
		t.filter.AddString(id)
		t.exact[id] = struct{}{}
		t.count++
	}
}

// HasSeen checks if a source id has been seen this run.
func (t *SeenTracker) HasSeen(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Fast check with Bloom filter
	if !t.filter.TestString(id) {
		return false
	}

	// Exact check for potential false positives
	_, exists := t.exact[id]
	return exists
}

// Count returns the number of unique ids seen.
func (t *SeenTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Reset clears the tracker for reuse by the next run.
func (t *SeenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filter.ClearAll()
	t.exact = make(map[string]struct{})
	t.count = 0
}
