package model

import "time"

// PasskeyCredential — webauthn-учётка пользователя. Поле Data хранит
// сериализованный webauthn.Credential (формат библиотеки go-webauthn).
type PasskeyCredential struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
