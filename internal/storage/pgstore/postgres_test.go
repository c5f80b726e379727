package pgstore

import (
	"os"
	"testing"
	"time"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

// Set PASTEBIN_TEST_POSTGRES_DSN to run against a live database.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("PASTEBIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PASTEBIN_TEST_POSTGRES_DSN not set")
	}
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestRowRoundTripKeepsUnsetFieldsNull(t *testing.T) {
	p := &storage.Paste{ID: "a", Content: "x", CreatedAt: time.Unix(100, 0), Size: 1}
	row := toRow(p)
	if row.ExpiresAt != nil || row.MaxViews != nil || row.PasswordHash != nil {
		t.Fatalf("expected NULL columns for unset policies, got %+v", row)
	}
	back := fromRow(&row)
	if back.HasExpiration() || back.HasViewLimit() || back.PasswordHash != "" {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestRowRoundTripKeepsPolicies(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &storage.Paste{ID: "b", Content: "y", CreatedAt: exp.Add(-time.Hour), ExpiresAt: exp, MaxViews: 4, PasswordHash: "h", Size: 1}
	back := fromRow(func() *pasteRow { r := toRow(p); return &r }())
	if !back.ExpiresAt.Equal(exp) || back.MaxViews != 4 || back.PasswordHash != "h" {
		t.Fatalf("unexpected round trip %+v", back)
	}
}
