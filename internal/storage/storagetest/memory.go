// Package storagetest provides an in-memory storage.Store and a contract
// suite that every backend runs in its own tests.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"ephemeral-paste/internal/storage"
)

// MemoryStore is a concurrency-safe in-memory storage.Store.
type MemoryStore struct {
	mu      sync.Mutex
	pastes  map[string]*storage.Paste
	pingErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pastes: make(map[string]*storage.Paste)}
}

// FailPing makes subsequent Ping calls return err. Pass nil to recover.
func (m *MemoryStore) FailPing(err error) {
	m.mu.Lock()
	m.pingErr = err
	m.mu.Unlock()
}

// Put stores paste unconditionally, bypassing Create's set-if-absent rule.
func (m *MemoryStore) Put(paste *storage.Paste) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pastes[paste.ID] = clonePaste(paste)
}

func (m *MemoryStore) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pastes[paste.ID]; ok {
		return storage.ErrExists
	}
	m.pastes[paste.ID] = clonePaste(paste)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*storage.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pastes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePaste(p), nil
}

func (m *MemoryStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pastes[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if p.MaxViews != nil && p.ViewsCount >= *p.MaxViews {
		return 0, storage.ErrViewLimitReached
	}
	p.ViewsCount++
	return p.ViewsCount, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, p := range m.pastes {
		if !p.HasExpiration() {
			continue
		}
		if !p.ExpiresAt.After(before) {
			delete(m.pastes, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MemoryStore) Close() error { return nil }

func clonePaste(p *storage.Paste) *storage.Paste {
	cp := *p
	if p.TTLSeconds != nil {
		v := *p.TTLSeconds
		cp.TTLSeconds = &v
	}
	if p.MaxViews != nil {
		v := *p.MaxViews
		cp.MaxViews = &v
	}
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		cp.ExpiresAt = &v
	}
	return &cp
}
