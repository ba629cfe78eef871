package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"layoutbot/internal/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db   *gorm.DB
	opts Options
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, opts Options) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open db: %w", err)
	}
	return newGormStore(db, opts)
}

func newGormStore(db *gorm.DB, opts Options) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	if err := db.AutoMigrate(&MessageModel{}); err != nil {
		return nil, fmt.Errorf("repository: auto migrate: %w", err)
	}
	return &GormStore{db: db, opts: opts}, nil
}

func (s *GormStore) Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error) {
	if reason := skipReason(msg); reason != "" {
		logSkipped(s.opts.logger(), msg, reason)
		return nil, nil
	}
	model := messageToModel(newStoredMessage(msg, s.opts.now()))
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "chat_id"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return nil, fmt.Errorf("repository: Record insert: %w", err)
	}
	stored, ok, err := s.Lookup(ctx, msg.Key())
	if err != nil {
		return nil, fmt.Errorf("repository: Record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("repository: Record: row %d/%d vanished after insert", msg.ConversationID, msg.MessageID)
	}
	return stored, nil
}

func (s *GormStore) Lookup(ctx context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error) {
	var model MessageModel
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND chat_id = ?", key.MessageID, key.ChatID).
		Order("id ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("repository: Lookup: %w", err)
	}
	m := messageFromModel(model)
	return &m, true, nil
}

func (s *GormStore) ApplyTranslation(ctx context.Context, key domain.MessageKey, translated string, dir domain.Direction) error {
	res := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("message_id = ? AND chat_id = ?", key.MessageID, key.ChatID).
		Updates(map[string]any{
			"translated_text":  translated,
			"translation_type": string(dir),
		})
	if res.Error != nil {
		return fmt.Errorf("repository: ApplyTranslation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&MessageModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository: DeleteOlderThan: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SizeOnDisk is not meaningful for a database server.
func (s *GormStore) SizeOnDisk(context.Context) (int64, error) {
	return 0, ErrSizeUnsupported
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("repository: Close: %w", err)
	}
	return sqlDB.Close()
}
