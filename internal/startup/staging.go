package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/teamsync/internal/config"
	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/storage"
	"github.com/teamsync/internal/storage/memory"
	"github.com/teamsync/internal/storage/postgres"
	"github.com/teamsync/internal/storage/sqlite"
)

// OpenStaging открывает хранилище черновиков выбранного типа: "memory", "sqlite", "redis" или "postgres".
func OpenStaging(ctx context.Context, cfg config.StagingConfig, maxWait time.Duration) (storage.StagingStore, error) {
	switch cfg.Backend {
	case "", config.StagingMemory:
		logger.Info("staging: memory (черновики не переживут перезапуск)")
		return memory.New(), nil
	case config.StagingSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st := sqlite.New(db)
		n, err := st.PurgeExpired(ctx)
		if err != nil {
			return nil, err
		}
		logger.Infof("staging: sqlite %s (purged %d expired)", cfg.SQLitePath, n)
		return st, nil
	case config.StagingRedis:
		c, err := ConnectRedisWithRetry(ctx, cfg.RedisURL, maxWait)
		if err != nil {
			return nil, err
		}
		logger.Info("staging: redis connected")
		return c, nil
	case config.StagingPostgres:
		pool, err := ConnectDBWithRetry(ctx, cfg.PostgresURL, maxWait)
		if err != nil {
			return nil, err
		}
		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		n, err := st.PurgeExpired(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		logger.Infof("staging: postgres connected (purged %d expired)", n)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown staging backend %q", cfg.Backend)
	}
}
