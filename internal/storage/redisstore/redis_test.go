package redisstore

import (
	"os"
	"testing"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

// Set PASTEBIN_TEST_REDIS_URL (for example redis://localhost:6379/15) to run
// against a live server. Keys use unique ids and are not flushed.
func TestConformance(t *testing.T) {
	url := os.Getenv("PASTEBIN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PASTEBIN_TEST_REDIS_URL not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(url, Options{})
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	_, err := decode("abc", map[string]string{"content": "x"})
	if err == nil {
		t.Fatalf("expected error for hash without counters")
	}
}

func TestDecodeZeroMeansUnset(t *testing.T) {
	p, err := decode("abc", map[string]string{
		"content":       "x",
		"created_at":    "1700000000000",
		"expires_at":    "0",
		"max_views":     "0",
		"views":         "4",
		"password_hash": "",
		"size":          "1",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.HasExpiration() || p.HasViewLimit() {
		t.Fatalf("expected no expiry and no limit, got %+v", p)
	}
	if p.Views != 4 || p.CreatedAt.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected decode result %+v", p)
	}
}
