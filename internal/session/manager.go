// Package session — явный объект сессии клиента: инициализация, реактивное
// состояние, таймер авто-выхода по неактивности и маршрутизация результатов.
// Не синглтон: создаётся и передаётся зависимостям явно, с Init/Close.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rentline/internal/authclient"
	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/tokenstore"
)

// State — состояние сессии.
type State int

const (
	Uninitialized State = iota
	Initializing
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Маршруты, по которым менеджер направляет пользователя.
const (
	RouteDashboard = "/dashboard"
	RouteLogin     = "/login"
)

// Сообщения пользователю: причина завершения сессии всегда различима.
const (
	msgLoggedOut        = "Вы вышли из аккаунта"
	msgInactivityLogout = "Сессия завершена из-за неактивности"
	msgServerRevoked    = "Сессия завершена сервером"
	msgSessionExpired   = "Сессия истекла, войдите снова"
)

const defaultInactivityWindow = 6 * time.Hour

// api — операции auth-клиента, нужные менеджеру (реализуется authclient.Client).
type api interface {
	Login(ctx context.Context, email, password string) (*model.UserPublic, error)
	Register(ctx context.Context, req authclient.RegisterRequest) (*model.UserPublic, error)
	LoginWithPasskey(ctx context.Context, email string) (*model.UserPublic, error)
	RegisterPasskey(ctx context.Context) error
	Logout(ctx context.Context)
	Profile(ctx context.Context) (*model.UserPublic, error)
	IsAuthenticated() bool
}

// Options — внешние зависимости менеджера.
type Options struct {
	// Notify показывает уведомление пользователю (ошибки входа, причины выхода).
	Notify func(msg string)
	// Navigate переводит пользователя на маршрут (после входа — дашборд, после выхода — вход).
	Navigate func(route string)
	// InactivityWindow — окно неактивности до авто-выхода; 0 — 6 часов.
	InactivityWindow time.Duration
	// RevocationURL — ws-эндпоинт отзыва сессий (пусто — подписка выключена).
	RevocationURL string
}

// Manager владеет состоянием сессии. Инвариант таймера: ровно один взведённый
// таймер в Authenticated, ни одного в остальных состояниях.
type Manager struct {
	api   api
	store tokenstore.Store
	opts  Options

	mu    sync.Mutex
	state State
	user  *model.UserPublic
	// epoch растёт при каждом выходе: ответы, пришедшие после выхода,
	// отбрасываются, а не применяются к состоянию.
	epoch int
	timer *time.Timer

	revCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(c api, store tokenstore.Store, opts Options) *Manager {
	if opts.InactivityWindow <= 0 {
		opts.InactivityWindow = defaultInactivityWindow
	}
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}
	if opts.Navigate == nil {
		opts.Navigate = func(string) {}
	}
	return &Manager{api: c, store: store, opts: opts, state: Uninitialized}
}

// State возвращает текущее состояние.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser возвращает пользователя сессии (nil вне Authenticated).
func (m *Manager) CurrentUser() *model.UserPublic {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	cp := *m.user
	return &cp
}

// Init восстанавливает сессию из локального хранилища: при наличии токена
// оптимистично переходит в Authenticated по кешированному профилю, затем
// асинхронно подтверждает его через Profile. Первый рендер не блокируется;
// расхождение с сервером разрешается принудительным выходом.
func (m *Manager) Init(ctx context.Context) {
	m.mu.Lock()
	if m.state != Uninitialized {
		m.mu.Unlock()
		return
	}
	m.state = Initializing
	if !m.api.IsAuthenticated() {
		m.state = Unauthenticated
		m.mu.Unlock()
		return
	}
	m.user = m.store.User()
	m.state = Authenticated
	m.armTimerLocked()
	m.startRevocationLocked()
	epoch := m.epoch
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		u, err := m.api.Profile(ctx)
		m.mu.Lock()
		if m.epoch != epoch {
			// Сессия уже завершена — ответ устарел.
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.mu.Unlock()
			logger.Infof("session: профиль при инициализации не подтверждён: %v", err)
			m.forceLogout(msgSessionExpired)
			return
		}
		m.user = u
		m.mu.Unlock()
	}()
}

// Login выполняет вход; при успехе — Authenticated и переход на дашборд,
// при неудаче — уведомление (ошибка не глотается молча).
func (m *Manager) Login(ctx context.Context, email, password string) error {
	u, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.opts.Notify(loginErrorMessage(err))
		return err
	}
	m.becomeAuthenticated(u)
	return nil
}

// Register регистрирует пользователя и сразу открывает сессию.
func (m *Manager) Register(ctx context.Context, req authclient.RegisterRequest) error {
	u, err := m.api.Register(ctx, req)
	if err != nil {
		m.opts.Notify(err.Error())
		return err
	}
	m.becomeAuthenticated(u)
	return nil
}

// LoginWithPasskey выполняет вход по passkey.
func (m *Manager) LoginWithPasskey(ctx context.Context, email string) error {
	u, err := m.api.LoginWithPasskey(ctx, email)
	if err != nil {
		m.opts.Notify(passkeyErrorMessage(err))
		return err
	}
	m.becomeAuthenticated(u)
	return nil
}

// RegisterPasskey привязывает passkey к текущей сессии и обновляет профиль.
func (m *Manager) RegisterPasskey(ctx context.Context) error {
	if err := m.api.RegisterPasskey(ctx); err != nil {
		m.opts.Notify(passkeyErrorMessage(err))
		return err
	}
	m.mu.Lock()
	if m.user != nil {
		m.user.HasPasskey = true
	}
	m.mu.Unlock()
	m.opts.Notify("Passkey подключён")
	return nil
}

// Logout — выход по действию пользователя.
func (m *Manager) Logout(ctx context.Context) {
	m.api.Logout(ctx)
	m.forceLogout(msgLoggedOut)
}

// HandleSessionExpired — хук для gateway.OnSessionExpired: refresh не удался,
// сессия жёстко завершается с редиректом (ошибку некуда показывать inline).
func (m *Manager) HandleSessionExpired() {
	m.forceLogout(msgSessionExpired)
}

// Touch отмечает активность пользователя (pointer, клавиши, скролл, тач) и
// перевзводит таймер неактивности на полное окно. Вне Authenticated — no-op.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.timer == nil {
		return
	}
	m.timer.Reset(m.opts.InactivityWindow)
}

// Close останавливает таймер и подписку на отзыв; состояние не меняет.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.stopRevocationLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) becomeAuthenticated(u *model.UserPublic) {
	m.mu.Lock()
	m.user = u
	m.state = Authenticated
	m.armTimerLocked()
	m.startRevocationLocked()
	m.mu.Unlock()
	m.opts.Navigate(RouteDashboard)
}

// forceLogout переводит в Unauthenticated: гасит таймер и подписку,
// инвалидирует незавершённые ответы и маршрутизирует на вход.
func (m *Manager) forceLogout(msg string) {
	m.mu.Lock()
	if m.state == Unauthenticated {
		m.mu.Unlock()
		return
	}
	m.epoch++
	m.stopTimerLocked()
	m.stopRevocationLocked()
	m.state = Unauthenticated
	m.user = nil
	m.mu.Unlock()
	m.store.Clear()
	m.opts.Notify(msg)
	m.opts.Navigate(RouteLogin)
}

// armTimerLocked взводит единственный таймер неактивности. Повторный вызов
// переиспользует таймер — невозможно накопить несколько отложенных выходов.
func (m *Manager) armTimerLocked() {
	window := m.opts.InactivityWindow
	if m.timer != nil {
		m.timer.Reset(window)
		return
	}
	epoch := m.epoch
	m.timer = time.AfterFunc(window, func() {
		m.mu.Lock()
		fire := m.state == Authenticated && m.epoch == epoch
		m.mu.Unlock()
		if !fire {
			return
		}
		logger.Infof("session: авто-выход после %v неактивности", window)
		m.api.Logout(context.Background())
		m.forceLogout(msgInactivityLogout)
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func loginErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, authclient.ErrInvalidCredentials):
		return "Неверный email или пароль"
	default:
		return "Не удалось войти: " + err.Error()
	}
}

func passkeyErrorMessage(err error) string {
	switch {
	case errors.Is(err, authclient.ErrPasskeyUnsupported):
		return "Это устройство не поддерживает passkey"
	case errors.Is(err, authclient.ErrPasskeyNotRegistered):
		return "Для этого email не зарегистрирован passkey"
	case errors.Is(err, authclient.ErrPasskeyCeremony):
		return "Вход по passkey прерван"
	default:
		return "Ошибка passkey: " + err.Error()
	}
}
