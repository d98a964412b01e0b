package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/repository"
	"github.com/rentline/internal/storage"
	"github.com/rentline/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInvalidRefresh     = errors.New("invalid or revoked refresh token")
)

// ValidationError — ошибки формы регистрации: поле -> сообщения.
type ValidationError map[string][]string

func (e ValidationError) Error() string { return "validation failed" }

// UserRepo, SessionRepo, CredentialRepo — интерфейсы хранилищ, чтобы сервис
// тестировался на in-memory реализациях.
type UserRepo interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetHasPasskey(ctx context.Context, id string, has bool) error
}

type SessionRepo interface {
	Create(ctx context.Context, s *model.RefreshSession) error
	Get(ctx context.Context, jti string) (*model.RefreshSession, error)
	Revoke(ctx context.Context, jti string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type CredentialRepo interface {
	Create(ctx context.Context, c *model.PasskeyCredential) error
	ListByUserID(ctx context.Context, userID string) ([]model.PasskeyCredential, error)
	UpdateData(ctx context.Context, id string, data []byte) error
}

// Revoker уведомляет подключённых клиентов пользователя об отзыве сессии.
type Revoker interface {
	Revoke(userID, reason string)
}

// AuthService — вход по паролю, регистрация, обмен refresh и выход.
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	creds    CredentialRepo
	store    storage.CeremonyStore
	tokens   *TokenIssuer
	revoker  Revoker
	webAuthn *webauthn.WebAuthn
}

func NewAuthService(users UserRepo, sessions SessionRepo, creds CredentialRepo, store storage.CeremonyStore, tokens *TokenIssuer, revoker Revoker, wa *webauthn.WebAuthn) *AuthService {
	return &AuthService{
		users: users, sessions: sessions, creds: creds,
		store: store, tokens: tokens, revoker: revoker, webAuthn: wa,
	}
}

// Login проверяет пароль и открывает новую сессию (пара токенов).
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	emailNorm := strings.TrimSpace(strings.ToLower(email))
	if emailNorm == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if allowed, err := s.store.CheckRateLimit(ctx, emailNorm); err != nil {
		return nil, err
	} else if !allowed {
		return nil, ErrRateLimitExceeded
	}
	user, err := s.users.GetByEmail(ctx, emailNorm)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Сравнение с фиктивным хешем — не выдаём тайминг существования email.
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, user)
}

// RegisterData — форма регистрации на сервере.
type RegisterData struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	PhoneNumber     string `json:"phone_number"`
	IsLandlord      bool   `json:"is_landlord"`
	IsTenant        bool   `json:"is_tenant"`
}

// Register создаёт пользователя (правила валидации те же, что на клиенте)
// и сразу открывает сессию.
func (s *AuthService) Register(ctx context.Context, data RegisterData) (*model.AuthResponse, error) {
	if errs := validate.Check(validate.Registration{
		Email:           data.Email,
		Password:        data.Password,
		PasswordConfirm: data.PasswordConfirm,
		FirstName:       data.FirstName,
		LastName:        data.LastName,
		IsLandlord:      data.IsLandlord,
		IsTenant:        data.IsTenant,
	}); errs != nil {
		return nil, ValidationError(errs)
	}
	emailNorm := strings.TrimSpace(strings.ToLower(data.Email))
	if _, err := s.users.GetByEmail(ctx, emailNorm); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        emailNorm,
		FirstName:    strings.TrimSpace(data.FirstName),
		LastName:     strings.TrimSpace(data.LastName),
		PhoneNumber:  strings.TrimSpace(data.PhoneNumber),
		PasswordHash: string(hash),
		IsLandlord:   data.IsLandlord,
		IsTenant:     data.IsTenant,
		DateJoined:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// Refresh обменивает refresh-токен на новый access. Токен остаётся валидным
// до отзыва или истечения; отозванный jti не обменивается.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, jti, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", ErrInvalidRefresh
	}
	sess, err := s.sessions.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidRefresh
		}
		return "", err
	}
	if sess.UserID != userID {
		return "", ErrInvalidRefresh
	}
	access, err := s.tokens.IssueAccess(userID, jti)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout отзывает refresh-сессию access-токена и уведомляет остальные
// подключения пользователя (другие вкладки/устройства с этой сессией).
func (s *AuthService) Logout(ctx context.Context, userID, sid string) error {
	if sid != "" {
		if err := s.sessions.Revoke(ctx, sid); err != nil {
			return err
		}
	}
	if s.revoker != nil {
		s.revoker.Revoke(userID, "logout")
	}
	return nil
}

// RevokeAll отзывает все сессии пользователя (отключение аккаунта, смена пароля).
func (s *AuthService) RevokeAll(ctx context.Context, userID, reason string) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if s.revoker != nil {
		s.revoker.Revoke(userID, reason)
	}
	return nil
}

// Profile возвращает авторитетный профиль пользователя.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.UserPublic, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub := user.ToPublic()
	return &pub, nil
}

// openSession выпускает пару токенов, записывает refresh-сессию и отмечает вход.
func (s *AuthService) openSession(ctx context.Context, user *model.User) (*model.AuthResponse, error) {
	refresh, jti, expiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.sessions.Create(ctx, &model.RefreshSession{
		JTI: jti, UserID: user.ID, CreatedAt: now, ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("create refresh session: %w", err)
	}
	access, err := s.tokens.IssueAccess(user.ID, jti)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.Errorf("auth: UpdateLastLogin user=%s: %v", user.ID, err)
	}
	user.LastLogin = &now
	return &model.AuthResponse{User: user.ToPublic(), Access: access, Refresh: refresh}, nil
}

// dummyHash — bcrypt от случайной строки; используется для выравнивания
// времени ответа при неизвестном email.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), bcrypt.DefaultCost)
	if err != nil {
		return []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0C3Ih/w0d1s1vJ9kCqW3K0eW0G2")
	}
	return h
}()
