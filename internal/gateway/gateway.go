// Package gateway — общий HTTP-шлюз доменных API-клиентов: подставляет
// bearer-заголовок и на 401 делает один refresh с повтором исходного запроса.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rentline/internal/logger"
)

// ErrSessionExpired — refresh не удался; сессия завершена, клиент обязан
// перейти на страницу входа. Никогда не показывается inline на упавшем вызове.
var ErrSessionExpired = errors.New("session expired")

// TokenSource отдаёт текущий access-токен (пустая строка — токена нет).
type TokenSource interface {
	Access() string
}

// Refresher обменивает refresh-токен на новый access. Реализация обязана
// сводить конкурентные вызовы к одному сетевому запросу.
type Refresher interface {
	RefreshToken(ctx context.Context) error
}

// Client выполняет запросы к API с bearer-авторизацией.
// На 401 — ровно один refresh-and-retry с байт-в-байт тем же телом;
// при неудаче refresh вызывается OnSessionExpired (контракт редиректа).
type Client struct {
	BaseURL          string
	HTTP             *http.Client
	Tokens           TokenSource
	Refresher        Refresher
	OnSessionExpired func()
}

func New(baseURL string, tokens TokenSource, refresher Refresher, onExpired func()) *Client {
	return &Client{
		BaseURL:          strings.TrimSuffix(baseURL, "/"),
		HTTP:             &http.Client{Timeout: 30 * time.Second},
		Tokens:           tokens,
		Refresher:        refresher,
		OnSessionExpired: onExpired,
	}
}

// Do выполняет запрос и декодирует 2xx-ответ в out (если out != nil).
// body != nil сериализуется в JSON один раз; повтор после refresh
// отправляет те же байты.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	defer logger.DeferLogDuration("gateway "+method+" "+path, time.Now())()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal body: %w", err)
		}
	}

	resp, respBody, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.Refresher != nil {
		// Один повтор на исходный запрос: если 401 вернёт и сам refresh
		// или повтор, дальше не зацикливаемся.
		if err := c.Refresher.RefreshToken(ctx); err != nil {
			logger.Infof("gateway: refresh не удался, сессия завершается: %v", err)
			if c.OnSessionExpired != nil {
				c.OnSessionExpired()
			}
			return ErrSessionExpired
		}
		resp, respBody, err = c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseAPIError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

// send строит запрос заново из сохранённых байт тела — повтор идентичен оригиналу.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Tokens.Access(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: read response: %w", err)
	}
	return resp, respBody, nil
}
