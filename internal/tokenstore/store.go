// Package tokenstore — клиентское хранилище пары токенов и кешированного профиля.
// Реализации: cookiefile.Client (файл в духе cookie-storage браузера),
// memory.Client (тесты и одноразовые сессии).
package tokenstore

import "github.com/rentline/internal/model"

// Фиксированные ключи записей — совпадают с ключами cookie веб-клиента.
const (
	KeyAccess  = "access_token"
	KeyRefresh = "refresh_token"
	KeyUser    = "user"
)

// Store — get/set/clear без состояний ошибок: отсутствующая или истёкшая
// запись читается как пустая. Токены — единственный писатель на процесс.
type Store interface {
	SetTokens(access, refresh string)
	Access() string
	Refresh() string
	SetUser(u *model.UserPublic)
	User() *model.UserPublic
	Clear()
}
