// Package memory — StagingStore в памяти процесса (черновики не переживают перезапуск).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/teamsync/internal/storage"
)

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

func New() *Client {
	return &Client{items: make(map[string]item), now: time.Now}
}

func (c *Client) Close() error { return nil }

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || c.now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{val: value, exp: c.now().Add(storage.StagingTTL)}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
