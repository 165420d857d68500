package tokenstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL sets how long entries live.
// Default: DefaultTTL.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.ttl = ttl
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) expired(e Entry) bool {
	return m.ttl > 0 && m.now().Sub(e.SavedAt) > m.ttl
}

// Save stores e. A zero SavedAt is set to the current time.
func (m *MemoryStore) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = m.now()
	}
	m.entries[e.RoomID] = e
	return nil
}

// Load returns the entry for roomID.
func (m *MemoryStore) Load(_ context.Context, roomID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Entry{}, ErrClosed
	}
	e, ok := m.entries[roomID]
	if !ok || m.expired(e) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Delete removes the entry for roomID.
func (m *MemoryStore) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, roomID)
	return nil
}

// List returns live entries, newest first, pruning expired ones.
func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Entry, 0, len(m.entries))
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			continue
		}
		out = append(out, e)
	}
	sortNewest(out)
	return out, nil
}

// Close drops every entry.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

func sortNewest(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SavedAt.Equal(entries[j].SavedAt) {
			return entries[i].RoomID < entries[j].RoomID
		}
		return entries[i].SavedAt.After(entries[j].SavedAt)
	})
}
