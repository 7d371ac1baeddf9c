package journal

import (
	"context"
	"sync"
)

// MemoryJournal keeps the newest entries in a fixed-size ring.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	size    int
}

// NewMemoryJournal returns a journal holding at most capacity entries.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryJournal{entries: make([]Entry, capacity)}
}

func (j *MemoryJournal) Append(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.size < len(j.entries) {
		j.size++
	}
	return nil
}

func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > j.size {
		limit = j.size
	}
	out := make([]Entry, 0, limit)
	idx := j.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out, nil
}

func (j *MemoryJournal) Clear(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = make([]Entry, len(j.entries))
	j.next = 0
	j.size = 0
	return nil
}
