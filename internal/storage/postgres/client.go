// Package postgres — StagingStore в таблице staged_items Postgres (pgxpool).
// Схема — migrations/postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/storage"
	"github.com/teamsync/migrations"
)

type Client struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool, now: time.Now}
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// Migrate применяет встроенные миграции по порядку имён.
func (c *Client) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations.Postgres, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Postgres.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := c.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	logger.Debugf("postgres: applied %d migrations", len(names))
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM staged_items WHERE staging_key = $1 AND expires_at > $2`,
		key, c.now().UTC(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres.Get: %w", err)
	}
	return value, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO staged_items (staging_key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (staging_key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, c.now().UTC().Add(storage.StagingTTL),
	)
	if err != nil {
		return fmt.Errorf("postgres.Set: %w", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM staged_items WHERE staging_key = $1`, key); err != nil {
		return fmt.Errorf("postgres.Delete: %w", err)
	}
	return nil
}

// PurgeExpired удаляет истёкшие черновики; вызывается при старте агента.
func (c *Client) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM staged_items WHERE expires_at <= $1`, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres.PurgeExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}
