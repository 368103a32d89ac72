package watermark

import (
	"sync"
	"time"
)

// MemoryStore keeps watermarks for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]time.Time)}
}

func (s *MemoryStore) Get(topicID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.marks[topicID]
	return t, ok, nil
}

func (s *MemoryStore) Advance(topicID string, t time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.marks[topicID]
	if !t.After(prev) {
		return prev, false, nil
	}
	s.marks[topicID] = t.UTC()
	return prev, true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
