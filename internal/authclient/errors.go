package authclient

import (
	"errors"
	"sort"
	"strings"

	"github.com/rentline/internal/gateway"
	"github.com/rentline/internal/passkey"
)

var (
	// ErrInvalidCredentials — сервер ответил 400/401 на login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasskeyNotRegistered — у сервера нет passkey-учётки для этого email.
	ErrPasskeyNotRegistered = errors.New("passkey not registered")
	// ErrPasskeyCeremony — отмена, таймаут или криптоошибка во время церемонии.
	ErrPasskeyCeremony = errors.New("passkey ceremony failed")

	// Ошибки смежных пакетов, по которым ветвятся вызывающие.
	ErrSessionExpired     = gateway.ErrSessionExpired
	ErrPasskeyUnsupported = passkey.ErrUnsupported
)

// ValidationError — поле -> сообщения; формат текста совпадает с серверным
// ("field: msg; field: msg").
type ValidationError map[string][]string

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e[k], ", "))
	}
	return strings.Join(parts, "; ")
}
