// Package validate — правила валидации регистрации, общие для клиента и сервера.
// Клиент проверяет форму перед отправкой, сервер — авторитетно; правила одни.
package validate

import (
	"regexp"
	"strings"
	"unicode"
)

// Валидация email: допустимый формат (упрощённый, без полного RFC).
var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const minPasswordLen = 8

// Registration — поля формы регистрации, подлежащие проверке.
type Registration struct {
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
	IsLandlord      bool
	IsTenant        bool
}

// Email проверяет формат адреса.
func Email(s string) bool {
	return emailRegexp.MatchString(strings.TrimSpace(strings.ToLower(s)))
}

// Password проверяет: длина >= 8, есть заглавная, строчная и цифра.
func Password(s string) []string {
	var msgs []string
	if len(s) < minPasswordLen {
		msgs = append(msgs, "пароль должен быть не короче 8 символов")
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		msgs = append(msgs, "пароль должен содержать заглавную букву")
	}
	if !lower {
		msgs = append(msgs, "пароль должен содержать строчную букву")
	}
	if !digit {
		msgs = append(msgs, "пароль должен содержать цифру")
	}
	return msgs
}

// Check возвращает карту поле -> сообщения. Пустая карта — форма валидна.
func Check(r Registration) map[string][]string {
	errs := make(map[string][]string)
	if !Email(r.Email) {
		errs["email"] = append(errs["email"], "неверный формат email")
	}
	if msgs := Password(r.Password); len(msgs) > 0 {
		errs["password"] = append(errs["password"], msgs...)
	}
	if r.PasswordConfirm != r.Password {
		errs["password_confirm"] = append(errs["password_confirm"], "пароли не совпадают")
	}
	if len([]rune(strings.TrimSpace(r.FirstName))) < 2 {
		errs["first_name"] = append(errs["first_name"], "имя должно быть не короче 2 символов")
	}
	if len([]rune(strings.TrimSpace(r.LastName))) < 2 {
		errs["last_name"] = append(errs["last_name"], "фамилия должна быть не короче 2 символов")
	}
	if !r.IsLandlord && !r.IsTenant {
		errs["is_landlord"] = append(errs["is_landlord"], "выберите роль: арендодатель и/или арендатор")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
