package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsync/internal/config"
)

func TestRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), time.Second, "test", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterDeadline(t *testing.T) {
	boom := errors.New("boom")
	err := Retry(context.Background(), 0, "test", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	boom := errors.New("boom")
	start := time.Now()
	err := Retry(ctx, time.Minute, "test", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOpenSQLite_AppliesMigrations(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("staged_items"))
}

func TestOpenStaging(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStaging(ctx, config.StagingConfig{Backend: config.StagingMemory}, time.Second)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, "draft-t1-new-new", "hello"))
	v, err := st.Get(ctx, "draft-t1-new-new")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	st, err = OpenStaging(ctx, config.StagingConfig{Backend: config.StagingSQLite, SQLitePath: ":memory:"}, time.Second)
	require.NoError(t, err)
	defer st.Close()
	v, err = st.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = OpenStaging(ctx, config.StagingConfig{Backend: "etcd"}, time.Second)
	assert.ErrorContains(t, err, "unknown staging backend")
}

func TestOpenStaging_PostgresBadURL(t *testing.T) {
	_, err := OpenStaging(context.Background(), config.StagingConfig{Backend: config.StagingPostgres, PostgresURL: "://bad"}, 0)
	assert.ErrorContains(t, err, "postgres config")
}

func TestConnectDBWithRetry_GivesUp(t *testing.T) {
	// порт 1 закрыт: первая же попытка неудачна, а maxWait == 0
	_, err := ConnectDBWithRetry(context.Background(), "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", 0)
	assert.Error(t, err)
}
