package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair поднимает тестовый сервер, регистрирующий каждое соединение в хабе
// под userID, и возвращает клиентскую сторону.
func wsPair(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, userID)
		if !hub.Register(c) {
			cancel()
			conn.Close()
			return
		}
		c.Start(ctx, cancel)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ConnectionCount = %d, want %d", hub.ConnectionCount(), want)
}

func TestRevokeDeliversEventAndCloses(t *testing.T) {
	hub := NewHub(10)
	defer hub.Shutdown()
	conn := wsPair(t, hub, "u1")
	waitCount(t, hub, 1)

	hub.Revoke("u1", "logout")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev RevocationEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read revocation event: %v", err)
	}
	if ev.Type != EventRevoked || ev.Reason != "logout" {
		t.Errorf("event = %+v", ev)
	}

	// Соединение закрывается сервером вслед за событием.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection close after revocation")
	}
	waitCount(t, hub, 0)
}

func TestRevokeOnlyTargetsUser(t *testing.T) {
	hub := NewHub(10)
	defer hub.Shutdown()
	target := wsPair(t, hub, "u1")
	other := wsPair(t, hub, "u2")
	waitCount(t, hub, 2)

	hub.Revoke("u1", "logout")

	target.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev RevocationEvent
	if err := target.ReadJSON(&ev); err != nil {
		t.Fatalf("target read: %v", err)
	}

	// Чужое соединение остаётся живым.
	waitCount(t, hub, 1)
	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("unexpected message on unrelated connection")
	} else if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("unrelated connection read error = %v, want timeout", err)
	}
}

func TestRevokeWithoutConnectionsIsNoop(t *testing.T) {
	hub := NewHub(10)
	defer hub.Shutdown()
	hub.Revoke("nobody", "logout")
}

func TestRegisterOverCapacity(t *testing.T) {
	hub := NewHub(1)
	defer hub.Shutdown()
	wsPair(t, hub, "u1")
	waitCount(t, hub, 1)

	// Второе соединение сверх лимита закрывается сразу после апгрейда.
	extra := wsPair(t, hub, "u2")
	extra.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := extra.ReadMessage(); err == nil {
		t.Error("expected over-capacity connection to be closed")
	}
	if hub.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount = %d, want 1", hub.ConnectionCount())
	}
}

func TestShutdownClosesAll(t *testing.T) {
	hub := NewHub(10)
	conn := wsPair(t, hub, "u1")
	waitCount(t, hub, 1)

	hub.Shutdown()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected close after Shutdown")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d, want 0", hub.ConnectionCount())
	}
}
