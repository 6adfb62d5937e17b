package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	keyPrefix     = "pos:idem:"
	pendingMarker = "pending"
	salePrefix    = "sale:"
)

// Entry is the recorded state of an idempotency key.
type Entry struct {
	SaleID  string
	Pending bool
}

// IdempotencyStore remembers which checkout a client key produced.
type IdempotencyStore interface {
	// Reserve claims key for an in-flight checkout; false means it is taken.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Complete(ctx context.Context, key string, saleID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type NoopIdempotencyStore struct{}

func (NoopIdempotencyStore) Reserve(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (NoopIdempotencyStore) Lookup(_ context.Context, _ string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (NoopIdempotencyStore) Complete(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (NoopIdempotencyStore) Release(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-process fallback used when Redis is
// not configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: pendingMarker, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryIdempotencyStore) Lookup(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return Entry{}, false, nil
	}
	return decodeEntry(e.value), true, nil
}

func (m *MemoryIdempotencyStore) Complete(_ context.Context, key string, saleID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: salePrefix + saleID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// live must be called with mu held.
func (m *MemoryIdempotencyStore) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func decodeEntry(value string) Entry {
	if id, ok := strings.CutPrefix(value, salePrefix); ok {
		return Entry{SaleID: id}
	}
	return Entry{Pending: true}
}
