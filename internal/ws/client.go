package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rentline/internal/logger"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 4
)

// Client — одно websocket-соединение канала отзыва сессий.
// Жизненный цикл: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
// Канал односторонний: клиент ничего осмысленного не присылает,
// readPump нужен только для pong-ов и обнаружения разрыва.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan RevocationEvent
	userID string

	// done защищает Send от записи в канал после закрытия.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan RevocationEvent, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
	}
}

// Start запускает оба насоса. ctx ограничивает их время жизни,
// cancel сохраняется для Close().
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait блокируется до выхода обоих насосов.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close сигнализирует о завершении. Безопасен для повторных вызовов
// из любой горутины.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// Разблокирует оба насоса: ReadMessage/WriteJSON вернут ошибку.
		c.conn.Close()
	})
}

// Send кладёт событие в очередь записи. Не блокируется: при
// переполненном буфере или закрытом соединении событие отбрасывается,
// клиент всё равно узнает об отзыве по 401.
func (c *Client) Send(ev RevocationEvent) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.wg.Done()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Debugf("ws: read %s: %v", c.userID, err)
			}
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Debugf("ws: write %s: %v", c.userID, err)
				return
			}
			// После доставки события отзыва соединение больше не нужно.
			if ev.Type == EventRevoked {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Reason))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
