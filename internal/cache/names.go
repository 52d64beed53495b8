// Package cache keeps author display names in Redis so feed loads do not
// hit the backend for every post.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jlym/minix/internal/feed"
)

const DefaultTTL = 5 * time.Minute

type NameCache struct {
	Client *redis.Client
	Inner  feed.NameResolver
	TTL    time.Duration
	Logger *slog.Logger
}

// Enforce that NameCache can stand in for the resolver it wraps.
var _ feed.NameResolver = &NameCache{}

func NewNameCache(client *redis.Client, inner feed.NameResolver) *NameCache {
	return &NameCache{
		Client: client,
		Inner:  inner,
		TTL:    DefaultTTL,
		Logger: slog.Default().With("component", "cache"),
	}
}

// Connect opens a client for addr and checks that the server answers.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connecting to redis failed, addr=%s", addr)
	}
	return client, nil
}

func nameKey(accountID string) string {
	return fmt.Sprintf("name:%s", accountID)
}

// DisplayName serves from Redis when it can and falls back to Inner. Only
// successful lookups are cached.
func (c *NameCache) DisplayName(ctx context.Context, accountID string) (string, error) {
	key := nameKey(accountID)

	name, err := c.Client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}
	if err != redis.Nil {
		c.Logger.WarnContext(ctx, "reading name cache failed", "accountID", accountID, "error", err)
	}

	name, err = c.Inner.DisplayName(ctx, accountID)
	if err != nil {
		return "", err
	}
	if name == "" {
		return name, nil
	}

	if err := c.Client.Set(ctx, key, name, c.TTL).Err(); err != nil {
		c.Logger.WarnContext(ctx, "writing name cache failed", "accountID", accountID, "error", err)
	}
	return name, nil
}

// Invalidate forgets the cached name of accountID, e.g. after a rename.
func (c *NameCache) Invalidate(ctx context.Context, accountID string) error {
	if err := c.Client.Del(ctx, nameKey(accountID)).Err(); err != nil {
		return errors.Wrapf(err, "invalidating cached name failed, accountID=%s", accountID)
	}
	return nil
}
