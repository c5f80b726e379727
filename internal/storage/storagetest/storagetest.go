// Package storagetest holds the behavior every storage.Store backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"pastebin-lite/internal/storage"
)

// Opener returns a fresh store for one subtest. It should register cleanup
// with t.
type Opener func(t *testing.T) storage.Store

// Run executes the conformance suite against the stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, open(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("IncrementUnlimited", func(t *testing.T) { testIncrementUnlimited(t, open(t)) })
	t.Run("IncrementLimit", func(t *testing.T) { testIncrementLimit(t, open(t)) })
	t.Run("IncrementExpired", func(t *testing.T) { testIncrementExpired(t, open(t)) })
	t.Run("FarFutureExpiry", func(t *testing.T) { testFarFutureExpiry(t, open(t)) })
	t.Run("IncrementMissing", func(t *testing.T) { testIncrementMissing(t, open(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, open(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, open(t)) })
	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

var seq atomic.Int64

// ID returns an id unlikely to collide with earlier runs against shared
// servers.
func ID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// Now returns a UTC time truncated to milliseconds, the coarsest resolution
// any backend keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func mustCreate(t *testing.T, s storage.Store, p *storage.Paste) {
	t.Helper()
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("create %s: %v", p.ID, err)
	}
}

func testCreateGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := Now()
	full := &storage.Paste{
		ID:           ID("full"),
		Content:      "hello\nworld",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		MaxViews:     3,
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		Size:         len("hello\nworld"),
	}
	plain := &storage.Paste{
		ID:        ID("plain"),
		Content:   "x",
		CreatedAt: now,
		Size:      1,
	}
	mustCreate(t, s, full)
	mustCreate(t, s, plain)

	out, err := s.Get(ctx, full.ID)
	if err != nil {
		t.Fatalf("get full: %v", err)
	}
	if out.Content != full.Content {
		t.Fatalf("expected content %q got %q", full.Content, out.Content)
	}
	if !out.CreatedAt.Equal(now) {
		t.Errorf("created_at: want %v got %v", now, out.CreatedAt)
	}
	if !out.ExpiresAt.Equal(full.ExpiresAt) {
		t.Errorf("expires_at: want %v got %v", full.ExpiresAt, out.ExpiresAt)
	}
	if out.MaxViews != 3 || out.Views != 0 {
		t.Errorf("views: want 0/3 got %d/%d", out.Views, out.MaxViews)
	}
	if out.PasswordHash != full.PasswordHash {
		t.Errorf("password hash mismatch: %q", out.PasswordHash)
	}
	if out.Size != full.Size {
		t.Errorf("size: want %d got %d", full.Size, out.Size)
	}

	out, err = s.Get(ctx, plain.ID)
	if err != nil {
		t.Fatalf("get plain: %v", err)
	}
	if out.HasExpiration() {
		t.Errorf("expected no expiry, got %v", out.ExpiresAt)
	}
	if out.HasViewLimit() {
		t.Errorf("expected no view limit, got %d", out.MaxViews)
	}
	if out.PasswordHash != "" {
		t.Errorf("expected no password hash, got %q", out.PasswordHash)
	}
}

func testCreateDuplicate(t *testing.T, s storage.Store) {
	p := &storage.Paste{ID: ID("dup"), Content: "one", CreatedAt: Now(), Size: 3}
	mustCreate(t, s, p)
	again := &storage.Paste{ID: p.ID, Content: "two", CreatedAt: Now(), Size: 3}
	if err := s.Create(context.Background(), again); !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	out, err := s.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Content != "one" {
		t.Fatalf("duplicate create overwrote content: %q", out.Content)
	}
}

func testGetMissing(t *testing.T, s storage.Store) {
	if _, err := s.Get(context.Background(), ID("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testIncrementUnlimited(t *testing.T, s storage.Store) {
	p := &storage.Paste{ID: ID("unlimited"), Content: "u", CreatedAt: Now(), Size: 1}
	mustCreate(t, s, p)
	for want := 1; want <= 5; want++ {
		got, err := s.IncrementView(context.Background(), p.ID, Now())
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected views %d got %d", want, got)
		}
	}
}

func testIncrementLimit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	p := &storage.Paste{ID: ID("limited"), Content: "l", CreatedAt: Now(), MaxViews: 2, Size: 1}
	mustCreate(t, s, p)
	for want := 1; want <= 2; want++ {
		got, err := s.IncrementView(ctx, p.ID, Now())
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected views %d got %d", want, got)
		}
	}
	if _, err := s.IncrementView(ctx, p.ID, Now()); !errors.Is(err, storage.ErrViewLimit) {
		t.Fatalf("expected ErrViewLimit, got %v", err)
	}
	out, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Views != 2 {
		t.Fatalf("rejected increment changed counter: %d", out.Views)
	}
}

func testIncrementExpired(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := Now()
	p := &storage.Paste{
		ID:        ID("expired"),
		Content:   "e",
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(time.Minute),
		Size:      1,
	}
	mustCreate(t, s, p)
	if _, err := s.IncrementView(ctx, p.ID, now); err != nil {
		t.Fatalf("increment before expiry: %v", err)
	}
	if _, err := s.IncrementView(ctx, p.ID, p.ExpiresAt); !errors.Is(err, storage.ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry instant, got %v", err)
	}
	out, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Views != 1 {
		t.Fatalf("expected 1 view, got %d", out.Views)
	}
}

func testFarFutureExpiry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := Now()
	p := &storage.Paste{
		ID:        ID("far"),
		Content:   "f",
		CreatedAt: now,
		ExpiresAt: storage.MaxExpiresAt.Truncate(time.Millisecond),
		Size:      1,
	}
	mustCreate(t, s, p)
	out, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !out.ExpiresAt.Equal(p.ExpiresAt) {
		t.Fatalf("expires_at: want %v got %v", p.ExpiresAt, out.ExpiresAt)
	}
	if out.ExpiredAt(now) {
		t.Fatalf("paste expiring in %v reported expired", p.ExpiresAt)
	}
	if _, err := s.IncrementView(ctx, p.ID, now.Add(time.Second)); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := s.DeleteExpired(ctx, now.Add(time.Second)); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if _, err := s.Get(ctx, p.ID); err != nil {
		t.Fatalf("live paste purged: %v", err)
	}
}

func testIncrementMissing(t *testing.T, s storage.Store) {
	if _, err := s.IncrementView(context.Background(), ID("ghost"), Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentIncrement(t *testing.T, s storage.Store) {
	const (
		maxViews = 5
		callers  = 40
	)
	p := &storage.Paste{ID: ID("race"), Content: "r", CreatedAt: Now(), MaxViews: maxViews, Size: 1}
	mustCreate(t, s, p)

	var served, refused atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := s.IncrementView(ctx, p.ID, Now())
			switch {
			case err == nil:
				served.Add(1)
			case errors.Is(err, storage.ErrViewLimit):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent increment: %v", err)
	}
	if served.Load() != maxViews {
		t.Fatalf("expected exactly %d served, got %d", maxViews, served.Load())
	}
	if refused.Load() != callers-maxViews {
		t.Fatalf("expected %d refused, got %d", callers-maxViews, refused.Load())
	}
	out, err := s.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Views != maxViews {
		t.Fatalf("expected counter %d, got %d", maxViews, out.Views)
	}
}

func testDeleteExpired(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := Now()
	alive := &storage.Paste{ID: ID("alive"), Content: "ok", CreatedAt: now, ExpiresAt: now.Add(time.Hour), MaxViews: 2, Size: 2}
	forever := &storage.Paste{ID: ID("forever"), Content: "ok", CreatedAt: now, Size: 2}
	expired := &storage.Paste{ID: ID("dead"), Content: "bye", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute), Size: 3}
	spent := &storage.Paste{ID: ID("spent"), Content: "bye", CreatedAt: now, MaxViews: 1, Size: 3}
	for _, p := range []*storage.Paste{alive, forever, expired, spent} {
		mustCreate(t, s, p)
	}
	if _, err := s.IncrementView(ctx, spent.ID, now); err != nil {
		t.Fatalf("consume spent: %v", err)
	}

	removed, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed < 2 {
		t.Fatalf("expected at least 2 removals, got %d", removed)
	}
	for _, id := range []string{expired.ID, spent.ID} {
		if _, err := s.Get(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected %s removed, got %v", id, err)
		}
	}
	for _, id := range []string{alive.ID, forever.ID} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("expected %s kept: %v", id, err)
		}
	}
}
