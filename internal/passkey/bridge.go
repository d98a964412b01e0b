// Package passkey — мост к платформенному аутентификатору для входа по passkey.
// В браузере за интерфейсом стоит navigator.credentials; на других платформах —
// нативный провайдер учёток или заглушка Unsupported.
package passkey

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
)

var (
	// ErrUnsupported — проверка возможностей платформы не прошла; церемония не начиналась.
	ErrUnsupported = errors.New("passkey: platform authenticator unsupported")
	// ErrCancelled — пользователь отменил начатую церемонию.
	ErrCancelled = errors.New("passkey: ceremony cancelled")
	// ErrCeremonyFailed — таймаут или криптографическая ошибка во время церемонии.
	ErrCeremonyFailed = errors.New("passkey: ceremony failed")
)

// Bridge выполняет webauthn-церемонии. Create/Get возвращают сырой JSON
// credential response в формате protocol (его разбирает сервер).
// Оба вызова могут висеть неограниченно долго в ожидании пользователя —
// отмена только через ctx.
type Bridge interface {
	IsSupported() bool
	Create(ctx context.Context, options *protocol.CredentialCreation) ([]byte, error)
	Get(ctx context.Context, options *protocol.CredentialAssertion) ([]byte, error)
}

type unsupported struct{}

func (unsupported) IsSupported() bool { return false }

func (unsupported) Create(context.Context, *protocol.CredentialCreation) ([]byte, error) {
	return nil, ErrUnsupported
}

func (unsupported) Get(context.Context, *protocol.CredentialAssertion) ([]byte, error) {
	return nil, ErrUnsupported
}

// Unsupported возвращает мост для платформ без аутентификатора:
// IsSupported() == false, любая церемония — ErrUnsupported.
func Unsupported() Bridge { return unsupported{} }
