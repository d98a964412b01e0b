package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rentline/internal/authclient"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/tokenstore/memory"
)

// fakeAPI — управляемая замена authclient.Client.
type fakeAPI struct {
	mu            sync.Mutex
	authenticated bool
	loginErr      error
	profile       *model.UserPublic
	profileErr    error
	logoutCalls   int
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*model.UserPublic, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &model.UserPublic{ID: "u1", Email: email}, nil
}

func (f *fakeAPI) Register(ctx context.Context, req authclient.RegisterRequest) (*model.UserPublic, error) {
	return &model.UserPublic{ID: "u1", Email: req.Email}, nil
}

func (f *fakeAPI) LoginWithPasskey(ctx context.Context, email string) (*model.UserPublic, error) {
	return &model.UserPublic{ID: "u1", Email: email, HasPasskey: true}, nil
}

func (f *fakeAPI) RegisterPasskey(ctx context.Context) error { return nil }

func (f *fakeAPI) Logout(ctx context.Context) {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
}

func (f *fakeAPI) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}

func (f *fakeAPI) Profile(ctx context.Context) (*model.UserPublic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile != nil {
		return f.profile, nil
	}
	return &model.UserPublic{ID: "u1", Email: "ivan@example.com"}, nil
}

func (f *fakeAPI) IsAuthenticated() bool { return f.authenticated }

// recorder собирает уведомления и переходы.
type recorder struct {
	mu     sync.Mutex
	msgs   []string
	routes []string
}

func (r *recorder) notify(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) navigate(route string) {
	r.mu.Lock()
	r.routes = append(r.routes, route)
	r.mu.Unlock()
}

func (r *recorder) lastRoute() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}

func (r *recorder) lastMsg() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

func newTestManager(client api, window time.Duration) (*Manager, *recorder) {
	rec := &recorder{}
	m := New(client, memory.New(), Options{
		Notify:           rec.notify,
		Navigate:         rec.navigate,
		InactivityWindow: window,
	})
	return m, rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestInitWithoutTokens(t *testing.T) {
	m, _ := newTestManager(&fakeAPI{authenticated: false}, time.Hour)
	defer m.Close()

	m.Init(context.Background())
	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", got)
	}
}

func TestInitOptimisticThenConfirmed(t *testing.T) {
	api := &fakeAPI{
		authenticated: true,
		profile:       &model.UserPublic{ID: "u1", Email: "fresh@example.com"},
	}
	m, _ := newTestManager(api, time.Hour)
	defer m.Close()

	store := m.store
	store.SetUser(&model.UserPublic{ID: "u1", Email: "cached@example.com"})

	m.Init(context.Background())
	// Оптимистичный переход — сразу, не дожидаясь сети.
	if got := m.State(); got != Authenticated {
		t.Fatalf("state = %v, want Authenticated", got)
	}
	waitFor(t, func() bool {
		u := m.CurrentUser()
		return u != nil && u.Email == "fresh@example.com"
	})
}

func TestInitConfirmationFailureForcesLogout(t *testing.T) {
	api := &fakeAPI{authenticated: true, profileErr: errors.New("401")}
	m, rec := newTestManager(api, time.Hour)
	defer m.Close()

	m.store.SetUser(&model.UserPublic{ID: "u1"})
	m.Init(context.Background())
	waitFor(t, func() bool { return m.State() == Unauthenticated })
	if rec.lastRoute() != RouteLogin {
		t.Errorf("route = %q, want %q", rec.lastRoute(), RouteLogin)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	m, _ := newTestManager(&fakeAPI{}, time.Hour)
	defer m.Close()

	m.Init(context.Background())
	m.Init(context.Background())
	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", got)
	}
}

func TestLoginNavigatesToDashboard(t *testing.T) {
	m, rec := newTestManager(&fakeAPI{}, time.Hour)
	defer m.Close()

	if err := m.Login(context.Background(), "ivan@example.com", "Password1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := m.State(); got != Authenticated {
		t.Errorf("state = %v, want Authenticated", got)
	}
	if rec.lastRoute() != RouteDashboard {
		t.Errorf("route = %q, want %q", rec.lastRoute(), RouteDashboard)
	}
	if u := m.CurrentUser(); u == nil || u.Email != "ivan@example.com" {
		t.Errorf("CurrentUser = %+v", u)
	}
}

func TestLoginFailureNotifies(t *testing.T) {
	api := &fakeAPI{loginErr: authclient.ErrInvalidCredentials}
	m, rec := newTestManager(api, time.Hour)
	defer m.Close()

	if err := m.Login(context.Background(), "ivan@example.com", "wrong"); err == nil {
		t.Fatal("expected error")
	}
	if rec.lastMsg() != "Неверный email или пароль" {
		t.Errorf("msg = %q", rec.lastMsg())
	}
	if got := m.State(); got == Authenticated {
		t.Error("state must not become Authenticated on failed login")
	}
}

func TestManualLogout(t *testing.T) {
	api := &fakeAPI{}
	m, rec := newTestManager(api, time.Hour)
	defer m.Close()

	m.Login(context.Background(), "ivan@example.com", "Password1")
	m.Logout(context.Background())

	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", got)
	}
	if api.logouts() != 1 {
		t.Errorf("server logout calls = %d, want 1", api.logouts())
	}
	if rec.lastMsg() != msgLoggedOut {
		t.Errorf("msg = %q, want %q", rec.lastMsg(), msgLoggedOut)
	}
	if rec.lastRoute() != RouteLogin {
		t.Errorf("route = %q, want %q", rec.lastRoute(), RouteLogin)
	}
}

func TestInactivityAutoLogout(t *testing.T) {
	api := &fakeAPI{}
	m, rec := newTestManager(api, 30*time.Millisecond)
	defer m.Close()

	m.Login(context.Background(), "ivan@example.com", "Password1")
	waitFor(t, func() bool { return m.State() == Unauthenticated })

	if api.logouts() != 1 {
		t.Errorf("server logout calls = %d, want 1", api.logouts())
	}
	if rec.lastMsg() != msgInactivityLogout {
		t.Errorf("msg = %q, want %q", rec.lastMsg(), msgInactivityLogout)
	}
}

func TestTouchResetsInactivityTimer(t *testing.T) {
	m, _ := newTestManager(&fakeAPI{}, 200*time.Millisecond)
	defer m.Close()

	m.Login(context.Background(), "ivan@example.com", "Password1")
	// Активность чаще окна — выхода быть не должно.
	for i := 0; i < 5; i++ {
		time.Sleep(50 * time.Millisecond)
		m.Touch()
	}
	if got := m.State(); got != Authenticated {
		t.Fatalf("state = %v, want Authenticated while user is active", got)
	}
	// Активность прекратилась — окно истекает.
	waitFor(t, func() bool { return m.State() == Unauthenticated })
}

func TestTouchOutsideAuthenticatedIsNoop(t *testing.T) {
	m, _ := newTestManager(&fakeAPI{}, time.Hour)
	defer m.Close()
	m.Touch() // Uninitialized
	m.Init(context.Background())
	m.Touch() // Unauthenticated
	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v", got)
	}
}

func TestHandleSessionExpired(t *testing.T) {
	m, rec := newTestManager(&fakeAPI{}, time.Hour)
	defer m.Close()

	m.Login(context.Background(), "ivan@example.com", "Password1")
	m.HandleSessionExpired()

	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", got)
	}
	if rec.lastMsg() != msgSessionExpired {
		t.Errorf("msg = %q, want %q", rec.lastMsg(), msgSessionExpired)
	}
}

// Событие revoked из ws-канала завершает сессию с серверным сообщением,
// отличимым от ручного выхода и выхода по неактивности.
func TestServerRevocationForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON(map[string]string{"type": "revoked", "reason": "logout"}); err != nil {
			t.Errorf("write event: %v", err)
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	m := New(&fakeAPI{}, memory.New(), Options{
		Notify:           rec.notify,
		Navigate:         rec.navigate,
		InactivityWindow: time.Hour,
		RevocationURL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	defer m.Close()

	if err := m.Login(context.Background(), "ivan@example.com", "Password1"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	waitFor(t, func() bool {
		return m.State() == Unauthenticated && rec.lastRoute() == RouteLogin
	})
	if rec.lastMsg() != msgServerRevoked {
		t.Errorf("msg = %q, want %q", rec.lastMsg(), msgServerRevoked)
	}
}

// Выход инвалидирует незавершённое подтверждение профиля: устаревший ответ
// не должен воскресить сессию или затереть состояние.
func TestStaleProfileResponseDiscardedAfterLogout(t *testing.T) {
	block := make(chan struct{})
	api := &fakeAPI{authenticated: true}
	m, _ := newTestManager(&slowProfileAPI{fakeAPI: api, block: block}, time.Hour)

	m.store.SetUser(&model.UserPublic{ID: "u1"})
	m.Init(context.Background())
	m.Logout(context.Background())
	close(block)
	m.Close()

	if got := m.State(); got != Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", got)
	}
	if m.CurrentUser() != nil {
		t.Error("stale profile applied after logout")
	}
}

type slowProfileAPI struct {
	*fakeAPI
	block chan struct{}
}

func (s *slowProfileAPI) Profile(ctx context.Context) (*model.UserPublic, error) {
	<-s.block
	return &model.UserPublic{ID: "u1", Email: "stale@example.com"}, nil
}
