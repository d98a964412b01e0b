// Package authclient — клиент auth-сервиса: вход по паролю и passkey,
// регистрация, обновление и локальная проверка токенов.
package authclient

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

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rentline/internal/gateway"
	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/passkey"
	"github.com/rentline/internal/tokenstore"
	"github.com/rentline/internal/validate"
)

// Client — операции аутентификации. Потокобезопасен; один Client на процесс.
type Client struct {
	baseURL string
	http    *http.Client
	store   tokenstore.Store
	bridge  passkey.Bridge
	gw      *gateway.Client

	// refreshGroup сводит конкурентные RefreshToken к одному сетевому вызову:
	// N одновременных 401 не устраивают гонку refresh-токенов.
	refreshGroup singleflight.Group
}

// New создаёт клиента. onSessionExpired вызывается, когда refresh окончательно
// не удался (контракт «сессия истекла -> редирект на вход»).
func New(baseURL string, store tokenstore.Store, bridge passkey.Bridge, onSessionExpired func()) *Client {
	if bridge == nil {
		bridge = passkey.Unsupported()
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
		bridge:  bridge,
	}
	c.gw = gateway.New(baseURL, store, c, onSessionExpired)
	return c
}

// Gateway возвращает шлюз с bearer-авторизацией и refresh-повтором —
// его используют доменные API-клиенты (объекты, арендаторы, договоры, расходы).
func (c *Client) Gateway() *gateway.Client { return c.gw }

// Store возвращает хранилище токенов клиента.
func (c *Client) Store() tokenstore.Store { return c.store }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет вход по паролю и сохраняет токены и профиль.
func (c *Client) Login(ctx context.Context, email, password string) (*model.UserPublic, error) {
	var resp model.AuthResponse
	if err := c.postJSON(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	c.applyAuth(&resp)
	return &resp.User, nil
}

// RegisterRequest — форма регистрации (поля совпадают с API).
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	PhoneNumber     string `json:"phone_number"`
	IsLandlord      bool   `json:"is_landlord"`
	IsTenant        bool   `json:"is_tenant"`
}

// Register проверяет форму локально (те же правила, что на сервере),
// затем регистрирует пользователя и сохраняет токены.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.UserPublic, error) {
	if errs := validate.Check(validate.Registration{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		IsLandlord:      req.IsLandlord,
		IsTenant:        req.IsTenant,
	}); errs != nil {
		return nil, ValidationError(errs)
	}
	var resp model.AuthResponse
	if err := c.postJSON(ctx, "/auth/register", req, &resp); err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			return nil, ValidationError(apiErr.Fields)
		}
		return nil, err
	}
	c.applyAuth(&resp)
	return &resp.User, nil
}

// challengeResponse — ответ challenge-эндпоинтов: id церемонии + опции webauthn.
type challengeResponse struct {
	SessionID string          `json:"session_id"`
	Options   json.RawMessage `json:"options"`
}

type verifyRequest struct {
	SessionID  string          `json:"session_id"`
	Credential json.RawMessage `json:"credential"`
}

// LoginWithPasskey выполняет вход по passkey для известного email.
// Ошибки различимы для вызывающего: ErrPasskeyUnsupported (нет поддержки,
// сеть не трогаем), ErrPasskeyNotRegistered (нет учётки), ErrPasskeyCeremony.
func (c *Client) LoginWithPasskey(ctx context.Context, email string) (*model.UserPublic, error) {
	if !c.bridge.IsSupported() {
		return nil, ErrPasskeyUnsupported
	}
	var ch challengeResponse
	if err := c.postJSON(ctx, "/auth/passkey/challenge", map[string]string{"email": email}, &ch); err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrPasskeyNotRegistered
		}
		return nil, err
	}
	var options protocol.CredentialAssertion
	if err := json.Unmarshal(ch.Options, &options); err != nil {
		return nil, fmt.Errorf("authclient: decode assertion options: %w", err)
	}
	assertion, err := c.bridge.Get(ctx, &options)
	if err != nil {
		return nil, ceremonyError(err)
	}
	var resp model.AuthResponse
	if err := c.postJSON(ctx, "/auth/passkey/verify", verifyRequest{SessionID: ch.SessionID, Credential: assertion}, &resp); err != nil {
		return nil, err
	}
	c.applyAuth(&resp)
	return &resp.User, nil
}

// RegisterPasskey привязывает passkey к текущей сессии (нужен bearer).
// Проверка поддержки — до любого сетевого вызова.
func (c *Client) RegisterPasskey(ctx context.Context) error {
	if !c.bridge.IsSupported() {
		return ErrPasskeyUnsupported
	}
	var ch challengeResponse
	if err := c.gw.Do(ctx, http.MethodPost, "/auth/passkey/register/challenge", nil, &ch); err != nil {
		return err
	}
	var options protocol.CredentialCreation
	if err := json.Unmarshal(ch.Options, &options); err != nil {
		return fmt.Errorf("authclient: decode creation options: %w", err)
	}
	attestation, err := c.bridge.Create(ctx, &options)
	if err != nil {
		return ceremonyError(err)
	}
	var out struct {
		HasPasskey bool `json:"has_passkey"`
	}
	if err := c.gw.Do(ctx, http.MethodPost, "/auth/passkey/register/verify", verifyRequest{SessionID: ch.SessionID, Credential: attestation}, &out); err != nil {
		return err
	}
	if u := c.store.User(); u != nil {
		u.HasPasskey = true
		c.store.SetUser(u)
	}
	return nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshToken обменивает refresh-токен на новый access. Конкурентные вызовы
// схлопываются в один запрос; любая неудача очищает токены — дальше клиент
// ведёт себя как неавторизованный.
func (c *Client) RefreshToken(ctx context.Context) error {
	// Запрос победителя общий для всех ждущих, поэтому внутри группы контекст
	// отвязан от отмены: отмена одного вызова не должна завершить сессию,
	// refresh-токен которой ещё действителен. Таймаут даёт http.Client.
	ctx = context.WithoutCancel(ctx)
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refresh := c.store.Refresh()
		if refresh == "" {
			c.store.Clear()
			return nil, ErrSessionExpired
		}
		var resp struct {
			Access string `json:"access"`
		}
		if err := c.postJSON(ctx, "/auth/refresh", refreshRequest{Refresh: refresh}, &resp); err != nil {
			c.store.Clear()
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		c.store.SetTokens(resp.Access, refresh)
		return nil, nil
	})
	return err
}

// Logout уведомляет сервер (неудача только логируется) и безусловно чистит
// локальные токены: локальное состояние — источник истины для «вышел».
func (c *Client) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err == nil {
		if token := c.store.Access(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			logger.Errorf("authclient: logout запрос не удался: %v", err)
		} else {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
	c.store.Clear()
}

// Profile запрашивает авторитетный профиль и заменяет кешированный целиком.
func (c *Client) Profile(ctx context.Context) (*model.UserPublic, error) {
	var u model.UserPublic
	if err := c.gw.Do(ctx, http.MethodGet, "/auth/profile", nil, &u); err != nil {
		return nil, err
	}
	c.store.SetUser(&u)
	return &u, nil
}

// IsAuthenticated — локальная эвристика: есть кешированный пользователь и
// access-токен, срок которого не заведомо истёк. Гарантию даёт только
// следующий сетевой вызов.
func (c *Client) IsAuthenticated() bool {
	token := c.store.Access()
	if token == "" || c.store.User() == nil {
		return false
	}
	return !tokenKnownExpired(token)
}

// tokenKnownExpired разбирает JWT без проверки подписи и смотрит только exp.
// Неразборчивый токен не считается истёкшим — его отвергнет сервер.
func tokenKnownExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

func (c *Client) applyAuth(resp *model.AuthResponse) {
	c.store.SetTokens(resp.Access, resp.Refresh)
	c.store.SetUser(&resp.User)
}

// ceremonyError нормализует ошибку моста. Причина (passkey.ErrCancelled,
// passkey.ErrCeremonyFailed) остаётся в цепочке: UI различает отмену
// пользователем и настоящий сбой.
func ceremonyError(err error) error {
	if errors.Is(err, passkey.ErrUnsupported) {
		return ErrPasskeyUnsupported
	}
	return fmt.Errorf("%w: %w", ErrPasskeyCeremony, err)
}

// postJSON — запрос без bearer-заголовка (login, register, refresh, challenge).
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("authclient: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gateway.ParseAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("authclient: decode response: %w", err)
	}
	return nil
}
