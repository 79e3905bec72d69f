package sentiment

import (
	"context"
	"sync"

	"github.com/spacesedan/sentiscope/internal/models"
)

// Cache stores validated segment inference keyed by CacheKey. The valkey
// client in internal/clients is the production implementation.
type Cache interface {
	Get(ctx context.Context, key string) (models.SegmentInference, bool, error)
	Set(ctx context.Context, key string, value models.SegmentInference) error
}

// MemoryCache is an unbounded in-process Cache for tests and single node
// runs without valkey.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.SegmentInference
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]models.SegmentInference)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (models.SegmentInference, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value models.SegmentInference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
