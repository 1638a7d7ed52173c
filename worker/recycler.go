package worker

import (
	"sync"

	"github.com/fezwho/docintel/id"
)

// Recycler tracks per-slot completion counts and decides when a slot must
// retire. Pure bookkeeping; no external side effects. A counter resets only
// by slot replacement, never by decrement.
type Recycler struct {
	mu       sync.Mutex
	maxTasks int
	counts   map[id.SlotID]int
}

// NewRecycler creates a Recycler. maxTasks <= 0 disables recycling.
func NewRecycler(maxTasks int) *Recycler {
	return &Recycler{
		maxTasks: maxTasks,
		counts:   make(map[id.SlotID]int),
	}
}

// RecordCompletion increments the slot's lifetime counter and returns the
// new count plus whether the slot should retire. Retirement triggers
// exactly once, when the counter reaches the configured maximum.
func (r *Recycler) RecordCompletion(slotID id.SlotID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[slotID]++
	count := r.counts[slotID]
	return count, r.maxTasks > 0 && count == r.maxTasks
}

// Count returns the slot's current lifetime counter.
func (r *Recycler) Count(slotID id.SlotID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[slotID]
}

// Forget drops the slot's counter after the slot terminates.
func (r *Recycler) Forget(slotID id.SlotID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, slotID)
}
