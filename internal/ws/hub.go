package ws

import (
	"sync"

	"github.com/rentline/internal/logger"
)

// RevocationEvent — событие, отправляемое клиенту при принудительном
// завершении сессии (logout с другого устройства, отзыв администратором).
type RevocationEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventRevoked — единственный тип события, который понимает клиент.
const EventRevoked = "revoked"

// Hub хранит активные websocket-соединения по userID и рассылает
// события отзыва сессий. Реализует service.Revoker.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int
	closed   bool
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		maxConns: maxConns,
	}
}

// Register добавляет соединение. Возвращает false при переполнении
// или после Shutdown — вызывающий обязан закрыть conn сам.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.total >= h.maxConns {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	return true
}

// Unregister убирает соединение из реестра. Повторный вызов безопасен.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	h.total--
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Revoke посылает событие "revoked" всем соединениям пользователя; их
// writePump закрывает соединение после доставки. Отсутствие соединений —
// не ошибка: клиент узнает об отзыве по ближайшему 401.
func (h *Hub) Revoke(userID, reason string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	logger.Infof("ws: отзыв сессий пользователя %s (%s), соединений: %d", userID, reason, len(targets))
	ev := RevocationEvent{Type: EventRevoked, Reason: reason}
	for _, c := range targets {
		c.Send(ev)
	}
}

// ConnectionCount возвращает общее число активных соединений.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Shutdown закрывает все соединения и запрещает новые регистрации.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
		c.Wait()
	}
}
