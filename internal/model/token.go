package model

import "time"

// AuthResponse — ответ login/register/passkey-verify: пользователь и пара токенов.
type AuthResponse struct {
	User    UserPublic `json:"user"`
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
}

// RefreshSession — выданный refresh-токен (по jti). Отозванный или
// использованный jti не обменивается повторно.
type RefreshSession struct {
	JTI       string     `json:"jti"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
