package store

import (
	"context"
	"sync"
	"time"
)

// InMemoryIdempotencyStore implements IdempotencyStore using an in-memory map
type InMemoryIdempotencyStore struct {
	data    map[string]*idempotencyItem
	mu      sync.Mutex
	maxSize int
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

type idempotencyItem struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryIdempotencyStore creates a store holding at most maxSize keys
func NewInMemoryIdempotencyStore(maxSize int) *InMemoryIdempotencyStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	s := &InMemoryIdempotencyStore{
		data:    make(map[string]*idempotencyItem),
		maxSize: maxSize,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go s.cleanup()

	return s
}

// Get retrieves the stored response of a processed request
func (s *InMemoryIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.data[key]
	if !exists || s.now().After(item.expiresAt) {
		return nil, ErrNotFound
	}
	return item.value, nil
}

// SetNX claims a request key
func (s *InMemoryIdempotencyStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if item, exists := s.data[key]; exists && !now.After(item.expiresAt) {
		return false, nil
	}

	if len(s.data) >= s.maxSize {
		s.evictLocked(now)
	}

	s.data[key] = &idempotencyItem{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

// evictLocked drops expired keys, or the key closest to expiry when none are
func (s *InMemoryIdempotencyStore) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
			continue
		}
		if oldestKey == "" || v.expiresAt.Before(oldest) {
			oldestKey, oldest = k, v.expiresAt
		}
	}
	if len(s.data) >= s.maxSize && oldestKey != "" {
		delete(s.data, oldestKey)
	}
}

// Delete removes an idempotency key
func (s *InMemoryIdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Ping always succeeds
func (s *InMemoryIdempotencyStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine
func (s *InMemoryIdempotencyStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// Size returns the number of stored keys
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, item := range s.data {
				if now.After(item.expiresAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
