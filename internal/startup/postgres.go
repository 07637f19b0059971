package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamsync/internal/config"
	"github.com/teamsync/internal/logger"
)

// ConnectDBWithRetry подключается к Postgres с повторами; при недоступности БД ждёт до maxWait.
func ConnectDBWithRetry(ctx context.Context, url string, maxWait time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	var pool *pgxpool.Pool
	err = Retry(ctx, maxWait, "postgres connect", func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

const (
	embeddedPort     = 5432
	embeddedUser     = "syncd"
	embeddedPassword = "syncd_secret"
	embeddedDatabase = "syncd"
)

// StartEmbeddedPostgres запускает локальный Postgres в cfg.PostgresDataDir и
// направляет на него cfg.PostgresURL. Остановка — Stop у результата.
func StartEmbeddedPostgres(cfg *config.StagingConfig) (*embeddedpostgres.EmbeddedPostgres, error) {
	if err := os.MkdirAll(cfg.PostgresDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}
	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(embeddedPort).
			Username(embeddedUser).
			Password(embeddedPassword).
			Database(embeddedDatabase).
			DataPath(cfg.PostgresDataDir).
			RuntimePath(filepath.Join(os.TempDir(), "syncd-pg-runtime")),
	)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start embedded postgres: %w", err)
	}
	cfg.PostgresURL = fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		embeddedUser, embeddedPassword, embeddedPort, embeddedDatabase)
	logger.Infof("embedded PostgreSQL running on port %d", embeddedPort)
	return db, nil
}
