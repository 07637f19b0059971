// Package sqlite — StagingStore в локальном файле SQLite (через gorm):
// черновики переживают перезапуск агента.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamsync/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StagedItem — строка таблицы staged_items (схема в migrations/001_staging.sql).
type StagedItem struct {
	Key       string `gorm:"column:staging_key;primaryKey"`
	Value     string
	ExpiresAt time.Time `gorm:"index"`
}

func (StagedItem) TableName() string { return "staged_items" }

type Client struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Client {
	return &Client{db: db, now: time.Now}
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var it StagedItem
	err := c.db.WithContext(ctx).
		Where("staging_key = ? AND expires_at > ?", key, c.now().UTC()).
		First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite.Get: %w", err)
	}
	return it.Value, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	it := StagedItem{Key: key, Value: value, ExpiresAt: c.now().UTC().Add(storage.StagingTTL)}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "staging_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(&it).Error
	if err != nil {
		return fmt.Errorf("sqlite.Set: %w", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.db.WithContext(ctx).Where("staging_key = ?", key).Delete(&StagedItem{}).Error; err != nil {
		return fmt.Errorf("sqlite.Delete: %w", err)
	}
	return nil
}

// PurgeExpired удаляет истёкшие черновики; вызывается при старте агента.
func (c *Client) PurgeExpired(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Where("expires_at <= ?", c.now().UTC()).Delete(&StagedItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("sqlite.PurgeExpired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
