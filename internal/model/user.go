package model

import (
	"strings"
	"time"
)

// User — серверная модель пользователя (арендодатель и/или арендатор).
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PhoneNumber  string     `json:"phone_number"`
	PasswordHash string     `json:"-"`
	IsLandlord   bool       `json:"is_landlord"`
	IsTenant     bool       `json:"is_tenant"`
	HasPasskey   bool       `json:"has_passkey"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// UserPublic — представление пользователя в API: имя отдаётся одним полем full_name.
// Клиент кеширует его целиком и заменяет при каждом обновлении профиля.
type UserPublic struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	PhoneNumber string     `json:"phone_number"`
	IsLandlord  bool       `json:"is_landlord"`
	IsTenant    bool       `json:"is_tenant"`
	HasPasskey  bool       `json:"has_passkey"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    strings.TrimSpace(u.FirstName + " " + u.LastName),
		PhoneNumber: u.PhoneNumber,
		IsLandlord:  u.IsLandlord,
		IsTenant:    u.IsTenant,
		HasPasskey:  u.HasPasskey,
		DateJoined:  u.DateJoined,
		LastLogin:   u.LastLogin,
	}
}
