package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rentline/internal/logger"
)

// revocationEvent — событие из ws-канала auth-сервиса.
type revocationEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// startRevocationLocked открывает подписку на отзыв сессии (если настроена).
// Вызывается под мьютексом; в Authenticated подписка ровно одна.
func (m *Manager) startRevocationLocked() {
	if m.opts.RevocationURL == "" || m.revCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.revCancel = cancel
	epoch := m.epoch
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.listenRevocations(ctx, epoch)
	}()
}

func (m *Manager) stopRevocationLocked() {
	if m.revCancel != nil {
		m.revCancel()
		m.revCancel = nil
	}
}

// listenRevocations держит ws-соединение и ждёт события revoked.
// Обрыв соединения не фатален: сессию в любом случае проверит следующий
// запрос через gateway.
func (m *Manager) listenRevocations(ctx context.Context, epoch int) {
	header := http.Header{}
	if token := m.store.Access(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, m.opts.RevocationURL, header)
	if err != nil {
		logger.Debugf("session: подписка на отзыв не открылась: %v", err)
		return
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Debugf("session: ws-канал отзыва закрыт: %v", err)
			}
			return
		}
		var ev revocationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type != "revoked" {
			continue
		}
		m.mu.Lock()
		stale := m.epoch != epoch
		m.mu.Unlock()
		if stale {
			return
		}
		logger.Infof("session: сервер отозвал сессию: %s", ev.Reason)
		m.forceLogout(msgServerRevoked)
		return
	}
}
