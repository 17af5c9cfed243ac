package code

import (
	"context"
	"sync"
	"time"

	"attendance/internal/metrics"
)

// maxAttempts bounds collision retries; with 4 digits and a classroom-scale
// number of concurrent lectures the loop terminates almost immediately.
const maxAttempts = 128

// MemoryStore is a mutex-guarded in-process Store for dev and tests.
type MemoryStore struct {
	gen Generator
	ttl time.Duration

	mu        sync.Mutex
	byLecture map[int64]Code
	byValue   map[string]int64
}

// NewMemoryStore creates an empty store issuing codes valid for ttl.
func NewMemoryStore(gen Generator, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryStore{
		gen:       gen,
		ttl:       ttl,
		byLecture: make(map[int64]Code),
		byValue:   make(map[string]int64),
	}
}

// Active implements Store.
func (s *MemoryStore) Active(_ context.Context, lectureID int64, now time.Time) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byLecture[lectureID]; ok && c.Live(now) {
		return c, nil
	}
	s.evict(lectureID)

	for i := 0; i < maxAttempts; i++ {
		v, err := s.gen.Generate()
		if err != nil {
			return Code{}, err
		}
		if otherID, taken := s.byValue[v]; taken {
			if s.byLecture[otherID].Live(now) {
				continue
			}
			s.evict(otherID)
		}
		c := Code{Value: v, LectureID: lectureID, IssuedAt: now, ValidUntil: now.Add(s.ttl)}
		s.byLecture[lectureID] = c
		s.byValue[v] = lectureID
		metrics.CodesIssued.Inc()
		return c, nil
	}
	return Code{}, ErrExhausted
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(_ context.Context, value string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lectureID, ok := s.byValue[value]
	if !ok {
		return 0, ErrNotFound
	}
	c := s.byLecture[lectureID]
	if c.Value != value || !c.Live(now) {
		return 0, ErrNotFound
	}
	return lectureID, nil
}

// Drop implements Store.
func (s *MemoryStore) Drop(_ context.Context, lectureID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(lectureID)
	return nil
}

// evict removes the lecture's entry and its reverse index. Caller holds mu.
func (s *MemoryStore) evict(lectureID int64) {
	if c, ok := s.byLecture[lectureID]; ok {
		delete(s.byLecture, lectureID)
		if s.byValue[c.Value] == lectureID {
			delete(s.byValue, c.Value)
		}
	}
}
