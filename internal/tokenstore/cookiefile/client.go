// Package cookiefile хранит токены и профиль в JSON-файле в формате
// cookie-записей (имя, значение, expires) — аналог cookie-storage веб-клиента.
package cookiefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/tokenstore"
)

// TTL записей фиксированный — совпадает со сроком жизни refresh-токена.
const entryTTL = 30 * 24 * time.Hour

type entry struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// Client — файловое хранилище. Все операции берут мьютекс; запись атомарная
// (tmp + rename), права файла 0600.
type Client struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Client {
	return &Client{path: path}
}

// load читает файл; любая ошибка трактуется как пустое хранилище.
func (c *Client) load() map[string]entry {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return map[string]entry{}
	}
	var m map[string]entry
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Debugf("cookiefile: повреждён %s: %v", c.path, err)
		return map[string]entry{}
	}
	now := time.Now()
	for k, e := range m {
		if now.After(e.Expires) {
			delete(m, k)
		}
	}
	return m
}

func (c *Client) save(m map[string]entry) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		logger.Errorf("cookiefile: marshal: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		logger.Errorf("cookiefile: mkdir: %v", err)
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		logger.Errorf("cookiefile: write: %v", err)
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		logger.Errorf("cookiefile: rename: %v", err)
	}
}

func (c *Client) get(key string) string {
	e, ok := c.load()[key]
	if !ok {
		return ""
	}
	return e.Value
}

func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.load()
	exp := time.Now().Add(entryTTL)
	m[tokenstore.KeyAccess] = entry{Value: access, Expires: exp}
	m[tokenstore.KeyRefresh] = entry{Value: refresh, Expires: exp}
	c.save(m)
}

func (c *Client) Access() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(tokenstore.KeyAccess)
}

func (c *Client) Refresh() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(tokenstore.KeyRefresh)
}

func (c *Client) SetUser(u *model.UserPublic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.load()
	if u == nil {
		delete(m, tokenstore.KeyUser)
		c.save(m)
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		logger.Errorf("cookiefile: marshal user: %v", err)
		return
	}
	m[tokenstore.KeyUser] = entry{Value: string(data), Expires: time.Now().Add(entryTTL)}
	c.save(m)
}

func (c *Client) User() *model.UserPublic {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := c.get(tokenstore.KeyUser)
	if raw == "" {
		return nil
	}
	var u model.UserPublic
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil
	}
	return &u
}

func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("cookiefile: remove: %v", err)
	}
}
