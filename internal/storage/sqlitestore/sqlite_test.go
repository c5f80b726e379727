package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTemp(t)
	})
}

func TestTimestampsKeepNanoseconds(t *testing.T) {
	store := openTemp(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	paste := &storage.Paste{
		ID:        "nanos",
		Content:   "n",
		CreatedAt: created,
		ExpiresAt: created.Add(90 * time.Second),
		Size:      1,
	}
	if err := store.Create(context.Background(), paste); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := store.Get(context.Background(), "nanos")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !out.CreatedAt.Equal(created) {
		t.Fatalf("created_at: want %v got %v", created, out.CreatedAt)
	}
	if !out.ExpiresAt.Equal(paste.ExpiresAt) {
		t.Fatalf("expires_at: want %v got %v", paste.ExpiresAt, out.ExpiresAt)
	}
	// One nanosecond before expiry is still servable.
	if _, err := store.IncrementView(context.Background(), "nanos", paste.ExpiresAt.Add(-time.Nanosecond)); err != nil {
		t.Fatalf("increment just before expiry: %v", err)
	}
}
