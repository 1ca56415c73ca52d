// Package pending keeps writes that wait for a user decision, keyed by an
// opaque session token and dropped after a TTL.
package pending

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is a bounded TTL map. Expired entries vanish lazily on access and
// in bulk on Sweep. When full, the oldest entry is evicted.
type Store[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type entry[T any] struct {
	token     string
	value     T
	expiresAt time.Time
}

func NewStore[T any](maxSize int, ttl time.Duration) *Store[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Store[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Put stores value under a fresh token.
func (s *Store[T]) Put(value T) string {
	token := uuid.NewString()
	s.Set(token, value)
	return token
}

// Set stores value under token, replacing and refreshing any previous entry.
func (s *Store[T]) Set(token string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry[T]{token: token, value: value, expiresAt: s.now().Add(s.ttl)}
	if elem, ok := s.items[token]; ok {
		elem.Value = e
		s.order.MoveToFront(elem)
		return
	}
	s.items[token] = s.order.PushFront(e)
	if s.order.Len() > s.maxSize {
		if oldest := s.order.Back(); oldest != nil {
			s.remove(oldest)
		}
	}
}

// Get returns the value without consuming it.
func (s *Store[T]) Get(token string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(token, false)
}

// Take returns the value and removes it, so a token confirms at most once.
func (s *Store[T]) Take(token string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(token, true)
}

func (s *Store[T]) lookup(token string, consume bool) (T, bool) {
	var zero T
	elem, ok := s.items[token]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[T])
	if s.now().After(e.expiresAt) {
		s.remove(elem)
		return zero, false
	}
	if consume {
		s.remove(elem)
	}
	return e.value, true
}

// Delete drops token if present.
func (s *Store[T]) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[token]; ok {
		s.remove(elem)
	}
}

func (s *Store[T]) remove(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(s.items, e.token)
	s.order.Remove(elem)
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*list.Element
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		s.remove(elem)
	}
	return len(expired)
}

// Len returns the number of entries, expired or not.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
