package sqlite

import (
	"context"
	"testing"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/teamsync/internal/storage"
	"github.com/teamsync/migrations"
)

func setupClient(t *testing.T) *Client {
	t.Helper()
	db, err := gorm.Open(sqlitedriver.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	schema, err := migrations.Files.ReadFile("001_staging.sql")
	require.NoError(t, err)
	require.NoError(t, db.Exec(string(schema)).Error)
	c := New(db)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	c := setupClient(t)

	v, err := c.Get(ctx, "draft-t1-d1-new")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, c.Set(ctx, "draft-t1-d1-new", "first"))
	require.NoError(t, c.Set(ctx, "draft-t1-d1-new", "second"))

	v, err = c.Get(ctx, "draft-t1-d1-new")
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	require.NoError(t, c.Delete(ctx, "draft-t1-d1-new"))
	v, err = c.Get(ctx, "draft-t1-d1-new")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestClient_ExpiredIsInvisibleAndPurged(t *testing.T) {
	ctx := context.Background()
	c := setupClient(t)
	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Set(ctx, "old", "v"))
	require.NoError(t, c.Set(ctx, "fresh", "v"))

	c.now = func() time.Time { return base.Add(storage.StagingTTL + time.Minute) }
	v, err := c.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	c.now = func() time.Time { return base }
	require.NoError(t, c.Set(ctx, "fresh", "v2"))
	c.now = func() time.Time { return base.Add(storage.StagingTTL - time.Minute) }
	n, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	c.now = func() time.Time { return base.Add(storage.StagingTTL + time.Minute) }
	n, err = c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
