package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/singleflight"
)

type staticTokens struct {
	mu     sync.Mutex
	access string
}

func (s *staticTokens) Access() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *staticTokens) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
}

// fakeRefresher считает сетевые refresh-вызовы и сводит конкурентные к одному.
type fakeRefresher struct {
	tokens *staticTokens
	group  singleflight.Group
	calls  atomic.Int32
	fail   bool
}

func (f *fakeRefresher) RefreshToken(ctx context.Context) error {
	_, err, _ := f.group.Do("refresh", func() (any, error) {
		f.calls.Add(1)
		if f.fail {
			return nil, errors.New("refresh denied")
		}
		f.tokens.set("fresh")
		return nil, nil
	})
	return err
}

func TestDoRetriesOnceAfterRefresh(t *testing.T) {
	var bodies [][]byte
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{access: "stale"}
	ref := &fakeRefresher{tokens: tokens}
	c := New(srv.URL, tokens, ref, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Do(context.Background(), http.MethodPost, "/v1/thing", map[string]string{"a": "b"}, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := ref.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	if string(bodies[0]) != string(bodies[1]) {
		t.Errorf("retry body %q differs from original %q", bodies[1], bodies[0])
	}
}

func TestDoConcurrent401SingleRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{access: "stale"}
	ref := &fakeRefresher{tokens: tokens}
	c := New(srv.URL, tokens, ref, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, "/v1/thing", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if got := ref.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestDoRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{access: "stale"}
	ref := &fakeRefresher{tokens: tokens, fail: true}
	expired := false
	c := New(srv.URL, tokens, ref, func() { expired = true })

	err := c.Do(context.Background(), http.MethodGet, "/v1/thing", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if !expired {
		t.Error("OnSessionExpired not called")
	}
}

// 401 после успешного refresh не должен уходить во второй refresh — иначе
// протухший на сервере аккаунт зацикливает клиента.
func TestDoNoRetryLoop(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &staticTokens{access: "stale"}
	ref := &fakeRefresher{tokens: tokens}
	c := New(srv.URL, tokens, ref, nil)

	err := c.Do(context.Background(), http.MethodGet, "/v1/thing", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want APIError 401", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2 (original + single retry)", got)
	}
	if got := ref.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestDoWithoutTokenStillSends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, &staticTokens{}, nil, nil)
	if err := c.Do(context.Background(), http.MethodGet, "/health", nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestParseAPIErrorLadder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"Недостаточно прав"}`, "Недостаточно прав"},
		{"error", `{"error":"Неверный email или пароль"}`, "Неверный email или пароль"},
		{"fields", `{"password":["Слишком короткий"],"email":["Неверный формат"]}`, "email: Неверный формат; password: Слишком короткий"},
		{"raw", `upstream timeout`, "upstream timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ParseAPIError(http.StatusBadRequest, []byte(tt.body))
			if apiErr.Message != tt.want {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.want)
			}
		})
	}
}
