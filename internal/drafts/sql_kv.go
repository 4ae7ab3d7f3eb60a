package drafts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sympto/internal/models"
)

// SQLKV stores values in the draft_entries table. Values must be JSON documents.
type SQLKV struct {
	db *gorm.DB
}

func NewSQLKV(db *gorm.DB) *SQLKV {
	return &SQLKV{db: db}
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var entry models.DraftEntry
	err := s.db.WithContext(ctx).First(&entry, "storage_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get draft entry: %w", err)
	}
	return string(entry.Value), nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	entry := models.DraftEntry{Key: key, Value: datatypes.JSON(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set draft entry: %w", err)
	}
	return nil
}

func (s *SQLKV) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&models.DraftEntry{}, "storage_key = ?", key).Error; err != nil {
		return fmt.Errorf("remove draft entry: %w", err)
	}
	return nil
}
