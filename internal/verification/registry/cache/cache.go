// Package cache stores registry search results for a short TTL so repeated
// directory searches do not hit the registries.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bobinator/internal/verification/registry/providers"
)

// SearchCache maps a search key to the hits returned for it.
type SearchCache interface {
	// Get returns the cached hits and whether the key was present.
	Get(ctx context.Context, key string) ([]providers.SearchHit, bool, error)
	Set(ctx context.Context, key string, hits []providers.SearchHit) error
}

// Key builds the cache key for a search. Queries are compared case- and
// whitespace-insensitively.
func Key(j providers.Jurisdiction, query string, limit int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return fmt.Sprintf("%s:%d:%s", j, limit, normalized)
}

type memoryEntry struct {
	hits      []providers.SearchHit
	expiresAt time.Time
}

// Memory is a process-local SearchCache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]providers.SearchHit, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]providers.SearchHit(nil), e.hits...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, hits []providers.SearchHit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		hits:      append([]providers.SearchHit{}, hits...),
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}
