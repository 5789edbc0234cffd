package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// MethodsCacheStore caches the provider's active payment methods per API key so the payment
// page does not call the provider on every render.
type MethodsCacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}

type NoopMethodsCacheStore struct{}

func NewNoopMethodsCacheStore() *NoopMethodsCacheStore {
	return &NoopMethodsCacheStore{}
}

func (s *NoopMethodsCacheStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopMethodsCacheStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopMethodsCacheStore) InvalidateAll(context.Context) error {
	return nil
}

type methodsCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

type InMemoryMethodsCacheStore struct {
	mu      sync.RWMutex
	entries map[string]methodsCacheEntry
}

func NewInMemoryMethodsCacheStore() *InMemoryMethodsCacheStore {
	return &InMemoryMethodsCacheStore{entries: map[string]methodsCacheEntry{}}
}

func (s *InMemoryMethodsCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (s *InMemoryMethodsCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[key] = methodsCacheEntry{payload: append([]byte(nil), value...), expiresAt: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryMethodsCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	s.entries = map[string]methodsCacheEntry{}
	s.mu.Unlock()
	return nil
}

// methodsCacheKey never contains the API key itself.
func methodsCacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "methods:" + hex.EncodeToString(sum[:16])
}
