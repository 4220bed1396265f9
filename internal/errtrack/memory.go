package errtrack

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps error entries in memory. Used when the service runs
// without a database and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends the entry.
func (s *MemoryStore) Insert(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// CountsSince aggregates entries newer than the cutoff.
func (s *MemoryStore) CountsSince(_ context.Context, since time.Time) (int, map[ErrorType]int, []CodeCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	byType := map[ErrorType]int{}
	codeCounts := map[string]int{}
	for _, e := range s.entries {
		if e.OccurredAt.Before(since) {
			continue
		}
		total++
		byType[e.Type]++
		codeCounts[e.Code]++
	}

	topCodes := make([]CodeCount, 0, len(codeCounts))
	for code, count := range codeCounts {
		topCodes = append(topCodes, CodeCount{Code: code, Count: count})
	}
	sort.Slice(topCodes, func(i, j int) bool {
		if topCodes[i].Count != topCodes[j].Count {
			return topCodes[i].Count > topCodes[j].Count
		}
		return topCodes[i].Code < topCodes[j].Code
	})
	if len(topCodes) > 10 {
		topCodes = topCodes[:10]
	}
	return total, byType, topCodes, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
