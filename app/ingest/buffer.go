package ingest

import "sync"

// Buffer collects candidates from concurrent feed tasks until the next ingestion run.
type Buffer struct {
	mu      sync.Mutex
	pending []Candidate
	index   map[string]struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{
		index: make(map[string]struct{}),
	}
}

// Add reports false when a candidate with the same URL is already pending.
func (b *Buffer) Add(c Candidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.index[c.URL]; ok {
		return false
	}
	b.index[c.URL] = struct{}{}
	b.pending = append(b.pending, c)
	return true
}

func (b *Buffer) Drain() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.pending
	b.pending = nil
	b.index = make(map[string]struct{})
	return drained
}

// Requeue puts candidates back in front of anything added since they were drained.
func (b *Buffer) Requeue(candidates []Candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	requeued := make([]Candidate, 0, len(candidates)+len(b.pending))
	for _, c := range candidates {
		if _, ok := b.index[c.URL]; ok {
			continue
		}
		b.index[c.URL] = struct{}{}
		requeued = append(requeued, c)
	}
	b.pending = append(requeued, b.pending...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
