package main

import (
	"path/filepath"
	"testing"
	"time"

	"pastebin-lite/internal/config"
	"pastebin-lite/internal/storage/boltstore"
	"pastebin-lite/internal/storage/cachedstore"
	"pastebin-lite/internal/storage/memstore"
	"pastebin-lite/internal/storage/sqlitestore"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	s, err := openStore(&config.Config{StoreDriver: config.DriverBolt, DataPath: filepath.Join(dir, "p.db")})
	if err != nil {
		t.Fatalf("bolt: %v", err)
	}
	if _, ok := s.(*boltstore.Store); !ok {
		t.Fatalf("expected bolt store, got %T", s)
	}
	s.Close()

	s, err = openStore(&config.Config{StoreDriver: config.DriverSQLite, DataPath: filepath.Join(dir, "p.sqlite")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := s.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
	s.Close()

	s, err = openStore(&config.Config{StoreDriver: config.DriverMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memstore.Store); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}

	s, err = openStore(&config.Config{StoreDriver: config.DriverMemory, CacheSize: 10, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("cached memory: %v", err)
	}
	if _, ok := s.(*cachedstore.Store); !ok {
		t.Fatalf("expected cached store, got %T", s)
	}

	if _, err := openStore(&config.Config{StoreDriver: "tape"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
