package memory

import (
	"context"
	"sync"
	"time"
)

const (
	ceremonyTTL          = 300 * time.Second
	loginRateLimitWindow = 600 * time.Second
	loginRateLimitMax    = 10
)

type item struct {
	val []byte
	exp time.Time
}

type Client struct {
	mu         sync.RWMutex
	ceremonies map[string]item
	limit      map[string][]time.Time
}

func New() *Client {
	return &Client{
		ceremonies: make(map[string]item),
		limit:      make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetCeremony(ctx context.Context, id string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ceremonies[id] = item{val: data, exp: time.Now().Add(ceremonyTTL)}
	return nil
}

func (c *Client) GetCeremony(ctx context.Context, id string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.ceremonies[id]
	if !ok || time.Now().After(v.exp) {
		return nil, nil
	}
	return v.val, nil
}

func (c *Client) DeleteCeremony(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ceremonies, id)
	return nil
}

func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-loginRateLimitWindow)
	slice := c.limit[key]
	var kept []time.Time
	for _, t := range slice {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= loginRateLimitMax {
		return false, nil
	}
	kept = append(kept, now)
	c.limit[key] = kept
	return true, nil
}
