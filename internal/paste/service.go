// Package paste holds the creation and retrieval rules for disposable pastes.
package paste

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pastebin-lite/internal/id"
	"pastebin-lite/internal/metrics"
	"pastebin-lite/internal/security"
	"pastebin-lite/internal/storage"
)

const (
	defaultMaxBytes = 1_048_576
	createAttempts  = 5
	// Largest TTL whose duration still fits in a time.Duration.
	maxTTLSeconds = math.MaxInt64 / int64(time.Second)
)

// PasswordHasher hashes and checks paste passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// Config wires a Service.
type Config struct {
	Store       storage.Store
	IDGenerator *id.Generator
	Hasher      PasswordHasher
	MaxBytes    int
	Logger      *zerolog.Logger
}

// Service creates and serves pastes against a single store.
type Service struct {
	store    storage.Store
	idGen    *id.Generator
	hasher   PasswordHasher
	maxBytes int
	log      zerolog.Logger
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = id.New(0)
	}
	if cfg.Hasher == nil {
		h, err := security.NewHasher(security.DefaultParams)
		if err != nil {
			return nil, err
		}
		cfg.Hasher = h
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Service{
		store:    cfg.Store,
		idGen:    cfg.IDGenerator,
		hasher:   cfg.Hasher,
		maxBytes: cfg.MaxBytes,
		log:      log,
	}, nil
}

// MaxBytes reports the content size limit.
func (s *Service) MaxBytes() int { return s.maxBytes }

// CreateInput is a creation request. Nil pointers mean "not given".
type CreateInput struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int
	Password   string
}

// Created describes a stored paste.
type Created struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxViews  int
	Protected bool
}

// Validate checks in, stopping at the first problem.
func (in CreateInput) Validate(maxBytes int) error {
	if strings.TrimSpace(in.Content) == "" {
		return ErrContentRequired
	}
	if maxBytes > 0 && len(in.Content) > maxBytes {
		return ErrContentTooLarge
	}
	if in.TTLSeconds != nil && (*in.TTLSeconds < 1 || *in.TTLSeconds > maxTTLSeconds) {
		return ErrInvalidTTL
	}
	if in.MaxViews != nil && *in.MaxViews < 1 {
		return ErrInvalidMaxViews
	}
	if len(in.Password) > security.MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Create validates in and stores a new paste created at now.
func (s *Service) Create(ctx context.Context, in CreateInput, now time.Time) (*Created, error) {
	if err := in.Validate(s.maxBytes); err != nil {
		return nil, err
	}

	now = now.UTC()
	if in.TTLSeconds != nil && time.Duration(*in.TTLSeconds)*time.Second > storage.MaxExpiresAt.Sub(now) {
		return nil, ErrInvalidTTL
	}
	p := &storage.Paste{
		Content:   in.Content,
		CreatedAt: now,
		Size:      len(in.Content),
	}
	if in.TTLSeconds != nil {
		p.ExpiresAt = now.Add(time.Duration(*in.TTLSeconds) * time.Second)
	}
	if in.MaxViews != nil {
		p.MaxViews = *in.MaxViews
	}
	if strings.TrimSpace(in.Password) != "" {
		hashed, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		p.PasswordHash = hashed
	}

	if err := s.insert(ctx, p); err != nil {
		return nil, err
	}
	metrics.PasteCreated.Inc()
	s.log.Debug().
		Str("paste_id", p.ID).
		Bool("expires", p.HasExpiration()).
		Int("max_views", p.MaxViews).
		Bool("password_protected", p.PasswordHash != "").
		Msg("paste stored")

	return &Created{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
		MaxViews:  p.MaxViews,
		Protected: p.PasswordHash != "",
	}, nil
}

// insert assigns a fresh id, retrying on the rare collision.
func (s *Service) insert(ctx context.Context, p *storage.Paste) error {
	for attempt := 1; attempt <= createAttempts; attempt++ {
		pid, err := s.idGen.Generate(ctx)
		if err != nil {
			return errors.Wrap(err, "gen id")
		}
		p.ID = pid
		err = s.store.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return errors.Wrap(err, "create paste")
		}
		s.log.Warn().Str("paste_id", pid).Int("attempt", attempt).Msg("id collision, regenerating")
	}
	return errors.Errorf("id collision after %d attempts", createAttempts)
}

// View is a successfully served paste.
type View struct {
	ID        string
	Content   string
	CreatedAt time.Time
	// ExpiresAt is nil when the paste never expires.
	ExpiresAt *time.Time
	// RemainingViews is nil when views are unlimited.
	RemainingViews *int
	Views          int
}

// Retrieve serves paste id at now. Checks run in a fixed order: existence,
// expiry, view limit, password. Only a request passing all of them consumes
// a view, and the store re-checks expiry and the limit atomically with the
// increment.
func (s *Service) Retrieve(ctx context.Context, pid, password string, now time.Time) (*View, error) {
	v, err := s.retrieve(ctx, pid, password, now)
	if err != nil {
		metrics.PasteRejected.WithLabelValues(Reason(err)).Inc()
		return nil, err
	}
	metrics.PasteServed.Inc()
	return v, nil
}

func (s *Service) retrieve(ctx context.Context, pid, password string, now time.Time) (*View, error) {
	p, err := s.Lookup(ctx, pid, now)
	if err != nil {
		return nil, err
	}

	if p.PasswordHash != "" {
		// Verify even an empty password so a missing one costs the same
		// as a wrong one.
		ok, err := s.hasher.Verify(p.PasswordHash, password)
		if err != nil {
			return nil, errors.Wrap(err, "verify password")
		}
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if !ok {
			return nil, ErrInvalidPassword
		}
	}

	views, err := s.store.IncrementView(ctx, pid, now)
	if err != nil {
		return nil, mapStoreErr(err, "increment views")
	}
	p.Views = views
	return toView(p), nil
}

// Lookup returns the paste if it is still servable at now, without
// consuming a view or checking the password.
func (s *Service) Lookup(ctx context.Context, pid string, now time.Time) (*storage.Paste, error) {
	if pid == "" {
		return nil, ErrNotFound
	}
	p, err := s.store.Get(ctx, pid)
	if err != nil {
		return nil, mapStoreErr(err, "get paste")
	}
	if p.ExpiredAt(now) {
		return nil, ErrExpired
	}
	if p.Exhausted() {
		return nil, ErrViewLimitReached
	}
	return p, nil
}

func mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrExpired):
		return ErrExpired
	case errors.Is(err, storage.ErrViewLimit):
		return ErrViewLimitReached
	}
	return errors.Wrap(err, op)
}

func toView(p *storage.Paste) *View {
	v := &View{
		ID:        p.ID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		Views:     p.Views,
	}
	if p.HasExpiration() {
		exp := p.ExpiresAt
		v.ExpiresAt = &exp
	}
	if p.HasViewLimit() {
		remaining := p.MaxViews - p.Views
		if remaining < 0 {
			remaining = 0
		}
		v.RemainingViews = &remaining
	}
	return v
}
