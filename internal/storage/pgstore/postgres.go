// Package pgstore keeps pastes in a PostgreSQL table through gorm.
package pgstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"pastebin-lite/internal/storage"
)

type pasteRow struct {
	ID           string     `gorm:"primaryKey;size:64"`
	Content      string     `gorm:"type:text;not null"`
	CreatedAt    time.Time  `gorm:"not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	MaxViews     *int
	Views        int `gorm:"not null;default:0"`
	PasswordHash *string
	Size         int `gorm:"not null"`
}

func (pasteRow) TableName() string { return "pastes" }

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects with dsn and migrates the pastes table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&pasteRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate pastes")
	}
	return &Store{db: db}, nil
}

// Create inserts the row; a taken id yields storage.ErrExists.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	row := toRow(paste)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return errors.Wrap(res.Error, "save paste")
	}
	if res.RowsAffected == 0 {
		return storage.ErrExists
	}
	return nil
}

// Get loads a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	var row pasteRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query paste")
	}
	return fromRow(&row), nil
}

// IncrementView issues a conditional UPDATE … RETURNING views; Postgres
// row locking makes the check and the increment one step.
func (s *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	var row pasteRow
	res := s.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "views"}}}).
		Where("id = ?", id).
		Where("(expires_at IS NULL OR expires_at > ?)", now.UTC()).
		Where("(max_views IS NULL OR views < max_views)").
		UpdateColumn("views", gorm.Expr("views + 1"))
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "increment views")
	}
	if res.RowsAffected == 1 {
		return row.Views, nil
	}

	paste, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if paste.ExpiredAt(now) {
		return 0, storage.ErrExpired
	}
	return 0, storage.ErrViewLimit
}

// DeleteExpired removes expired and view-exhausted rows.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("(expires_at IS NOT NULL AND expires_at <= ?) OR (max_views IS NOT NULL AND views >= max_views)", now.UTC()).
		Delete(&pasteRow{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete expired")
	}
	return int(res.RowsAffected), nil
}

// Ping checks the pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "sql handle")
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(p *storage.Paste) pasteRow {
	row := pasteRow{
		ID:        p.ID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC(),
		Size:      p.Size,
	}
	if p.HasExpiration() {
		exp := p.ExpiresAt.UTC()
		row.ExpiresAt = &exp
	}
	if p.HasViewLimit() {
		n := p.MaxViews
		row.MaxViews = &n
	}
	if p.PasswordHash != "" {
		h := p.PasswordHash
		row.PasswordHash = &h
	}
	return row
}

func fromRow(row *pasteRow) *storage.Paste {
	p := &storage.Paste{
		ID:        row.ID,
		Content:   row.Content,
		CreatedAt: row.CreatedAt.UTC(),
		Views:     row.Views,
		Size:      row.Size,
	}
	if row.ExpiresAt != nil {
		p.ExpiresAt = row.ExpiresAt.UTC()
	}
	if row.MaxViews != nil {
		p.MaxViews = *row.MaxViews
	}
	if row.PasswordHash != nil {
		p.PasswordHash = *row.PasswordHash
	}
	return p
}
