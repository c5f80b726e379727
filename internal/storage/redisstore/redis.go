// Package redisstore keeps pastes as Redis hashes so several service
// instances can share one store.
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"pastebin-lite/internal/storage"
)

const (
	keyPrefix = "paste:"
	// Keys outlive their expiry by this much so an expired paste is still
	// reported as expired rather than missing.
	defaultGrace   = time.Hour
	defaultTimeout = 3 * time.Second
)

// Results of incrScript other than a new view count.
const (
	incrMissing = -1
	incrExpired = -2
	incrLimit   = -3
)

var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1],
	"content", ARGV[1],
	"created_at", ARGV[2],
	"expires_at", ARGV[3],
	"max_views", ARGV[4],
	"views", 0,
	"password_hash", ARGV[5],
	"size", ARGV[6])
if tonumber(ARGV[7]) > 0 then
	redis.call("PEXPIREAT", KEYS[1], ARGV[7])
end
return 1
`)

var incrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if exp > 0 and tonumber(ARGV[1]) >= exp then
	return -2
end
local max = tonumber(redis.call("HGET", KEYS[1], "max_views") or "0")
local views = tonumber(redis.call("HGET", KEYS[1], "views") or "0")
if max > 0 and views >= max then
	return -3
end
return redis.call("HINCRBY", KEYS[1], "views", 1)
`)

// Options tunes a Store.
type Options struct {
	// Grace is how long a key survives past the paste expiry.
	Grace time.Duration
	// Timeout bounds every Redis round trip.
	Timeout time.Duration
}

// Store implements storage.Store on Redis.
type Store struct {
	client  *redis.Client
	grace   time.Duration
	timeout time.Duration
}

// Open parses url, connects and pings the server.
func Open(url string, opts Options) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	client := redis.NewClient(opt)

	s := New(client, opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, opts Options) *Store {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Store{client: client, grace: opts.Grace, timeout: opts.Timeout}
}

func key(id string) string { return keyPrefix + id }

// Create stores the paste hash unless the id is taken.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var expireAt int64
	if paste.HasExpiration() {
		expireAt = paste.ExpiresAt.Add(s.grace).UnixMilli()
	}
	created, err := createScript.Run(ctx, s.client, []string{key(paste.ID)},
		paste.Content,
		paste.CreatedAt.UnixMilli(),
		toMillis(paste.ExpiresAt),
		paste.MaxViews,
		paste.PasswordHash,
		paste.Size,
		expireAt,
	).Int()
	if err != nil {
		return errors.Wrap(err, "create paste")
	}
	if created == 0 {
		return storage.ErrExists
	}
	return nil
}

// Get reads the paste hash.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "get paste")
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return decode(id, fields)
}

// IncrementView runs the check and the HINCRBY as one server-side script.
func (s *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := incrScript.Run(ctx, s.client, []string{key(id)}, now.UnixMilli()).Int()
	if err != nil {
		return 0, errors.Wrap(err, "increment views")
	}
	switch res {
	case incrMissing:
		return 0, storage.ErrNotFound
	case incrExpired:
		return 0, storage.ErrExpired
	case incrLimit:
		return 0, storage.ErrViewLimit
	}
	return res, nil
}

// DeleteExpired scans paste keys and drops the dead ones. Keys also expire on
// their own once the grace period has passed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, errors.Wrap(err, "scan pastes")
		}
		for _, k := range keys {
			vals, err := s.client.HMGet(ctx, k, "expires_at", "max_views", "views").Result()
			if err != nil {
				return removed, errors.Wrap(err, "read paste policy")
			}
			paste := storage.Paste{
				ExpiresAt: fromMillis(parseInt(vals[0])),
				MaxViews:  int(parseInt(vals[1])),
				Views:     int(parseInt(vals[2])),
			}
			if !paste.Dead(now) {
				continue
			}
			n, err := s.client.Del(ctx, k).Result()
			if err != nil {
				return removed, errors.Wrap(err, "delete paste")
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func decode(id string, fields map[string]string) (*storage.Paste, error) {
	ints := make(map[string]int64, 5)
	for _, name := range []string{"created_at", "expires_at", "max_views", "views", "size"} {
		raw, ok := fields[name]
		if !ok {
			return nil, errors.Errorf("paste %s missing field %s", id, name)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "paste %s field %s", id, name)
		}
		ints[name] = n
	}
	return &storage.Paste{
		ID:           id,
		Content:      fields["content"],
		CreatedAt:    fromMillis(ints["created_at"]),
		ExpiresAt:    fromMillis(ints["expires_at"]),
		MaxViews:     int(ints["max_views"]),
		Views:        int(ints["views"]),
		PasswordHash: fields["password_hash"],
		Size:         int(ints["size"]),
	}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
