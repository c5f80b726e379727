package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"pastebin-lite/internal/storage"
)

var (
	pasteBucket  = []byte("pastes")
	expireBucket = []byte("expires")
)

var errBuckets = errors.New("buckets not initialized")

// Store implements storage.Store backed by BoltDB.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db")
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pasteBucket); err != nil {
			return errors.Wrap(err, "create paste bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(expireBucket); err != nil {
			return errors.Wrap(err, "create expire bucket")
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Create persists a new paste entry and indexes its expiry.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Normalize timestamps to UTC for consistency.
	paste.CreatedAt = paste.CreatedAt.UTC()
	paste.ExpiresAt = paste.ExpiresAt.UTC()

	data, err := json.Marshal(paste)
	if err != nil {
		return errors.Wrap(err, "marshal paste")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errBuckets
		}
		if pBucket.Get([]byte(paste.ID)) != nil {
			return storage.ErrExists
		}
		if err := pBucket.Put([]byte(paste.ID), data); err != nil {
			return errors.Wrap(err, "save paste")
		}
		if paste.HasExpiration() {
			if err := eBucket.Put(expireKey(paste.ExpiresAt, paste.ID), []byte(paste.ID)); err != nil {
				return errors.Wrap(err, "index expiry")
			}
		}
		return nil
	})
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errBuckets
		}
		paste, err := decode(bucket.Get([]byte(id)))
		if err != nil {
			return err
		}
		out = paste
		return nil
	})
	return out, err
}

// IncrementView checks and bumps the view counter inside one write
// transaction; bolt runs at most one writer at a time.
func (s *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var views int
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pasteBucket)
		if bucket == nil {
			return errBuckets
		}
		paste, err := decode(bucket.Get([]byte(id)))
		if err != nil {
			return err
		}
		if paste.ExpiredAt(now) {
			return storage.ErrExpired
		}
		if paste.Exhausted() {
			return storage.ErrViewLimit
		}
		paste.Views++
		data, err := json.Marshal(paste)
		if err != nil {
			return errors.Wrap(err, "marshal paste")
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return errors.Wrap(err, "save view count")
		}
		views = paste.Views
		return nil
	})
	return views, err
}

// DeleteExpired removes pastes expiring at or before now, using the expiry
// index, and any paste whose views are used up.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		pBucket := tx.Bucket(pasteBucket)
		eBucket := tx.Bucket(expireBucket)
		if pBucket == nil || eBucket == nil {
			return errBuckets
		}

		// Collect first: deleting under a live cursor skips entries.
		var keys, ids [][]byte
		cursor := eBucket.Cursor()
		cutoff := toTimestamp(now)
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			if binary.BigEndian.Uint64(key[:8]) > cutoff {
				break
			}
			keys = append(keys, append([]byte(nil), key...))
			ids = append(ids, append([]byte(nil), val...))
		}
		for i, id := range ids {
			if pBucket.Get(id) != nil {
				removed++
			}
			if err := pBucket.Delete(id); err != nil {
				return errors.Wrapf(err, "delete expired paste %s", id)
			}
			if err := eBucket.Delete(keys[i]); err != nil {
				return errors.Wrap(err, "delete expiry index")
			}
		}

		var spent []*storage.Paste
		if err := pBucket.ForEach(func(_, raw []byte) error {
			paste, err := decode(raw)
			if err != nil {
				return err
			}
			if paste.Exhausted() {
				spent = append(spent, paste)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, paste := range spent {
			if err := pBucket.Delete([]byte(paste.ID)); err != nil {
				return errors.Wrapf(err, "delete spent paste %s", paste.ID)
			}
			if paste.HasExpiration() {
				if err := eBucket.Delete(expireKey(paste.ExpiresAt, paste.ID)); err != nil {
					return errors.Wrap(err, "delete expiry index")
				}
			}
			removed++
		}
		return nil
	})

	return removed, err
}

// Ping verifies the database file is readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(pasteBucket) == nil {
			return errBuckets
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decode(raw []byte) (*storage.Paste, error) {
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	var paste storage.Paste
	if err := json.Unmarshal(raw, &paste); err != nil {
		return nil, errors.Wrap(err, "unmarshal paste")
	}
	return &paste, nil
}

func expireKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, toTimestamp(t))
	copy(key[8:], id)
	return key
}

func toTimestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixNano())
}
