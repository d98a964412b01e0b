package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL церемонии 5 минут (время на прохождение webauthn-церемонии);
// rate limit 10 попыток входа / 10 минут на ключ (email или IP).
const (
	CeremonyTTL          = 300
	LoginRateLimitWindow = 600 // 10 минут
	LoginRateLimitMax    = 10  // попыток за окно
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetCeremony сохраняет sessionData церемонии по ключу webauthn:{id}, TTL 5 мин.
func (c *Client) SetCeremony(ctx context.Context, id string, data []byte) error {
	return c.cli.Set(ctx, "webauthn:"+id, data, CeremonyTTL*time.Second).Err()
}

// GetCeremony возвращает данные церемонии (ключ не удаляется — удаляем только
// после успешной верификации).
func (c *Client) GetCeremony(ctx context.Context, id string) ([]byte, error) {
	val, err := c.cli.Get(ctx, "webauthn:"+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

// DeleteCeremony удаляет церемонию после верификации (одноразовый challenge).
func (c *Client) DeleteCeremony(ctx context.Context, id string) error {
	return c.cli.Del(ctx, "webauthn:"+id).Err()
}

// CheckRateLimit проверяет login_limit:{key}: макс. LoginRateLimitMax попыток
// за окно. При превышении — HTTP 429.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (allowed bool, err error) {
	k := "login_limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, LoginRateLimitWindow*time.Second)
	}
	return n <= int64(LoginRateLimitMax), nil
}

// FlushDB очищает текущую БД Redis (для сброса церемоний и rate limit при тестах).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
