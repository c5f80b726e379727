// Package cachedstore puts an in-process LRU in front of another store.
//
// Only reads are cached. IncrementView always reaches the backing store, which
// stays the authority on the view limit; the cached count is refreshed from its
// answer. A cached count can lag behind other instances but never runs ahead.
package cachedstore

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"pastebin-lite/internal/storage"
)

const maxSize = 100000

type item struct {
	paste storage.Paste
	exp   time.Time
}

// Store decorates a storage.Store with an LRU of recently read pastes.
type Store struct {
	next storage.Store
	ttl  time.Duration
	now  func() time.Time

	mu sync.Mutex
	c  *lru.Cache[string, item]
}

// New wraps next with a cache of size entries each kept at most ttl.
func New(next storage.Store, size int, ttl time.Duration) (*Store, error) {
	if next == nil {
		return nil, errors.New("backing store required")
	}
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > maxSize {
		return nil, errors.New("cache size too large")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}
	return &Store{next: next, ttl: ttl, now: time.Now, c: c}, nil
}

// Create forwards to the backing store.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	return s.next.Create(ctx, paste)
}

// Get serves from the cache when possible.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if p, ok := s.lookup(id); ok {
		return p, nil
	}
	p, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(p)
	return p, nil
}

// IncrementView forwards and then syncs or evicts the cached copy.
func (s *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	views, err := s.next.IncrementView(ctx, id, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExpired) || errors.Is(err, storage.ErrViewLimit) {
			s.forget(id)
		}
		return 0, err
	}
	s.mu.Lock()
	if it, ok := s.c.Peek(id); ok && it.paste.Views < views {
		it.paste.Views = views
		s.c.Add(id, it)
	}
	s.mu.Unlock()
	return views, nil
}

// DeleteExpired forwards and drops every cached entry.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := s.next.DeleteExpired(ctx, now)
	if n > 0 {
		s.mu.Lock()
		s.c.Purge()
		s.mu.Unlock()
	}
	return n, err
}

// Ping forwards to the backing store.
func (s *Store) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the backing store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.c.Purge()
	s.mu.Unlock()
	return s.next.Close()
}

// Len reports the number of cached pastes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Len()
}

func (s *Store) lookup(id string) (*storage.Paste, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.c.Get(id)
	if !ok {
		return nil, false
	}
	if !s.now().Before(it.exp) {
		s.c.Remove(id)
		return nil, false
	}
	cp := it.paste
	return &cp, true
}

func (s *Store) remember(p *storage.Paste) {
	exp := s.now().Add(s.ttl)
	if p.HasExpiration() && p.ExpiresAt.Before(exp) {
		exp = p.ExpiresAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Add(p.ID, item{paste: *p, exp: exp})
}

func (s *Store) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Remove(id)
}
