package startup

import (
	"context"
	"time"

	"github.com/teamsync/internal/logger"
	redisstorage "github.com/teamsync/internal/storage/redis"
)

// Retry вызывает fn, пока она не вернёт nil, с экспоненциальной задержкой (2s → 30s).
// Возвращает последнюю ошибку, если за maxWait подключиться не удалось или ctx отменён.
func Retry(ctx context.Context, maxWait time.Duration, what string, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s (gave up after %v): %v", what, maxWait, err)
			return err
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// ConnectRedisWithRetry подключает staging store в Redis с повторами.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := Retry(ctx, maxWait, "redis connect", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(pingCtx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
