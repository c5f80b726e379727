// Package memstore keeps pastes in process memory. It backs tests and the
// "memory" driver; nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pastebin-lite/internal/storage"
)

// Store implements storage.Store with a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	pastes map[string]*storage.Paste
}

// New returns an empty Store.
func New() *Store {
	return &Store{pastes: make(map[string]*storage.Paste)}
}

// Create inserts a paste, refusing duplicate ids.
func (m *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pastes[paste.ID]; ok {
		return storage.ErrExists
	}
	cp := *paste
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.ExpiresAt = cp.ExpiresAt.UTC()
	m.pastes[paste.ID] = &cp
	return nil
}

// Get returns a copy of the paste stored under id.
func (m *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pastes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// IncrementView bumps the counter while holding the write lock.
func (m *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pastes[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if p.ExpiredAt(now) {
		return 0, storage.ErrExpired
	}
	if p.Exhausted() {
		return 0, storage.ErrViewLimit
	}
	p.Views++
	return p.Views, nil
}

// DeleteExpired removes pastes that are expired at now or out of views.
func (m *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, paste := range m.pastes {
		if paste.Dead(now) {
			delete(m.pastes, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (m *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *Store) Close() error { return nil }
