package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// accessClaims — клеймы access-токена; sid привязывает его к refresh-сессии,
// чтобы logout отзывал именно её.
type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// TokenIssuer выпускает и проверяет JWT (HS256): короткий access и долгий
// refresh с jti для отзыва.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: "rentline-auth", accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RefreshTTL возвращает срок жизни refresh-токена (нужен при записи сессии).
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccess выпускает access-токен пользователя, привязанный к refresh-сессии sid.
func (t *TokenIssuer) IssueAccess(userID, sid string) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		SessionID: sid,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// IssueRefresh выпускает refresh-токен; jti сохраняется в refresh_sessions
// и проверяется при каждом обмене.
func (t *TokenIssuer) IssueRefresh(userID string) (token, jti string, expiresAt time.Time, err error) {
	jti = uuid.New().String()
	now := time.Now().UTC()
	expiresAt = now.Add(t.refreshTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, jti, expiresAt, nil
}

// ParseAccess проверяет подпись и срок access-токена; возвращает userID и sid.
func (t *TokenIssuer) ParseAccess(token string) (userID, sid string, err error) {
	claims := &accessClaims{}
	if err := t.parse(token, claims); err != nil {
		return "", "", err
	}
	if claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.SessionID, nil
}

// ParseRefresh проверяет подпись и срок refresh-токена; возвращает userID и jti.
func (t *TokenIssuer) ParseRefresh(token string) (userID, jti string, err error) {
	claims := &jwt.RegisteredClaims{}
	if err := t.parse(token, claims); err != nil {
		return "", "", err
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
