package memory

import (
	"sync"

	"github.com/rentline/internal/model"
)

// Client хранит токены и профиль в памяти процесса.
type Client struct {
	mu      sync.RWMutex
	access  string
	refresh string
	user    *model.UserPublic
}

func New() *Client { return &Client{} }

func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access, c.refresh = access, refresh
}

func (c *Client) Access() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

func (c *Client) Refresh() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresh
}

func (c *Client) SetUser(u *model.UserPublic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u == nil {
		c.user = nil
		return
	}
	cp := *u
	c.user = &cp
}

func (c *Client) User() *model.UserPublic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	cp := *c.user
	return &cp
}

func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access, c.refresh, c.user = "", "", nil
}
