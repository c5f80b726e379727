package storage

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxExpiresAt is the latest expiry every backend can represent. Stores keep
// timestamps as unix nanoseconds.
var MaxExpiresAt = time.Unix(0, math.MaxInt64).UTC()

var (
	// ErrNotFound is returned when a paste does not exist.
	ErrNotFound = errors.New("paste not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("paste id already exists")
	// ErrExpired is returned by IncrementView when the paste is past its expiry.
	ErrExpired = errors.New("paste expired")
	// ErrViewLimit is returned by IncrementView when the paste has no views left.
	ErrViewLimit = errors.New("paste view limit reached")
)

// Paste represents a stored paste entry.
type Paste struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	MaxViews     int       `json:"max_views,omitempty"`
	Views        int       `json:"views"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Size         int       `json:"size"`
}

// HasExpiration reports whether the paste has an expiry set.
func (p Paste) HasExpiration() bool {
	return !p.ExpiresAt.IsZero()
}

// HasViewLimit reports whether the paste has a view ceiling.
func (p Paste) HasViewLimit() bool {
	return p.MaxViews > 0
}

// ExpiredAt reports whether the paste can no longer be served at now.
func (p Paste) ExpiredAt(now time.Time) bool {
	return p.HasExpiration() && !now.Before(p.ExpiresAt)
}

// Exhausted reports whether every allowed view has been consumed.
func (p Paste) Exhausted() bool {
	return p.HasViewLimit() && p.Views >= p.MaxViews
}

// Dead reports whether the paste is expired or exhausted at now.
func (p Paste) Dead(now time.Time) bool {
	return p.ExpiredAt(now) || p.Exhausted()
}

// Store defines the storage backend contract.
//
// IncrementView is the only mutation after Create. Implementations must check
// existence, expiry and the view limit and bump the counter in one atomic step,
// returning the new view count.
type Store interface {
	Create(ctx context.Context, paste *Paste) error
	Get(ctx context.Context, id string) (*Paste, error)
	IncrementView(ctx context.Context, id string, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
