package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
	"github.com/rentline/internal/repository"
)

var (
	// ErrPasskeyNotRegistered — у пользователя нет ни одной webauthn-учётки.
	ErrPasskeyNotRegistered = errors.New("passkey not registered")
	// ErrCeremonyExpired — церемония не найдена или истёк её TTL.
	ErrCeremonyExpired = errors.New("passkey ceremony expired")
)

const (
	ceremonyLogin        = "login"
	ceremonyRegistration = "registration"
)

// ceremonyRecord — состояние незавершённой церемонии в CeremonyStore.
type ceremonyRecord struct {
	Kind    string               `json:"kind"`
	UserID  string               `json:"user_id"`
	Session webauthn.SessionData `json:"session"`
}

// passkeyUser адаптирует model.User к webauthn.User.
type passkeyUser struct {
	user  *model.User
	creds []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u *passkeyUser) WebAuthnName() string                       { return u.user.Email }
func (u *passkeyUser) WebAuthnDisplayName() string                { return strings.TrimSpace(u.user.FirstName + " " + u.user.LastName) }
func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

// BeginPasskeyLogin начинает церемонию входа: возвращает id церемонии и
// JSON-опции (protocol.CredentialAssertion) для моста на клиенте.
func (s *AuthService) BeginPasskeyLogin(ctx context.Context, email string) (string, json.RawMessage, error) {
	emailNorm := strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.GetByEmail(ctx, emailNorm)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrPasskeyNotRegistered
		}
		return "", nil, err
	}
	pk, err := s.loadPasskeyUser(ctx, user)
	if err != nil {
		return "", nil, err
	}
	if len(pk.creds) == 0 {
		return "", nil, ErrPasskeyNotRegistered
	}
	assertion, sessionData, err := s.webAuthn.BeginLogin(pk)
	if err != nil {
		return "", nil, fmt.Errorf("begin passkey login: %w", err)
	}
	sessionID, err := s.storeCeremony(ctx, ceremonyLogin, user.ID, sessionData)
	if err != nil {
		return "", nil, err
	}
	options, err := json.Marshal(assertion)
	if err != nil {
		return "", nil, fmt.Errorf("encode assertion options: %w", err)
	}
	return sessionID, options, nil
}

// FinishPasskeyLogin проверяет assertion и открывает сессию.
func (s *AuthService) FinishPasskeyLogin(ctx context.Context, sessionID string, credential []byte) (*model.AuthResponse, error) {
	rec, err := s.loadCeremony(ctx, sessionID, ceremonyLogin)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	pk, err := s.loadPasskeyUser(ctx, user)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(credential)
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}
	cred, err := s.webAuthn.ValidateLogin(pk, rec.Session, parsed)
	if err != nil {
		return nil, fmt.Errorf("validate passkey login: %w", err)
	}
	if err := s.store.DeleteCeremony(ctx, sessionID); err != nil {
		logger.Errorf("passkey: DeleteCeremony %s: %v", sessionID, err)
	}
	// Обновляем счётчик подписей — защита от клонированного аутентификатора.
	if data, err := json.Marshal(cred); err == nil {
		credID := base64.RawURLEncoding.EncodeToString(cred.ID)
		if err := s.creds.UpdateData(ctx, credID, data); err != nil {
			logger.Errorf("passkey: UpdateData %s: %v", credID, err)
		}
	}
	return s.openSession(ctx, user)
}

// BeginPasskeyRegistration начинает привязку passkey к текущей сессии.
func (s *AuthService) BeginPasskeyRegistration(ctx context.Context, userID string) (string, json.RawMessage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	pk, err := s.loadPasskeyUser(ctx, user)
	if err != nil {
		return "", nil, err
	}
	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(pk.creds) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(pk.creds).CredentialDescriptors()))
	}
	creation, sessionData, err := s.webAuthn.BeginRegistration(pk, opts...)
	if err != nil {
		return "", nil, fmt.Errorf("begin passkey registration: %w", err)
	}
	sessionID, err := s.storeCeremony(ctx, ceremonyRegistration, user.ID, sessionData)
	if err != nil {
		return "", nil, err
	}
	options, err := json.Marshal(creation)
	if err != nil {
		return "", nil, fmt.Errorf("encode creation options: %w", err)
	}
	return sessionID, options, nil
}

// FinishPasskeyRegistration проверяет attestation, сохраняет учётку и
// выставляет has_passkey.
func (s *AuthService) FinishPasskeyRegistration(ctx context.Context, userID, sessionID string, credential []byte) error {
	rec, err := s.loadCeremony(ctx, sessionID, ceremonyRegistration)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return ErrCeremonyExpired
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	pk, err := s.loadPasskeyUser(ctx, user)
	if err != nil {
		return err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(credential)
	if err != nil {
		return fmt.Errorf("parse attestation: %w", err)
	}
	cred, err := s.webAuthn.CreateCredential(pk, rec.Session, parsed)
	if err != nil {
		return fmt.Errorf("create passkey credential: %w", err)
	}
	if err := s.store.DeleteCeremony(ctx, sessionID); err != nil {
		logger.Errorf("passkey: DeleteCeremony %s: %v", sessionID, err)
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := s.creds.Create(ctx, &model.PasskeyCredential{
		ID:        base64.RawURLEncoding.EncodeToString(cred.ID),
		UserID:    user.ID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	return s.users.SetHasPasskey(ctx, user.ID, true)
}

func (s *AuthService) loadPasskeyUser(ctx context.Context, user *model.User) (*passkeyUser, error) {
	list, err := s.creds.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	pk := &passkeyUser{user: user}
	for _, c := range list {
		var cred webauthn.Credential
		if err := json.Unmarshal(c.Data, &cred); err != nil {
			logger.Errorf("passkey: повреждена учётка %s: %v", c.ID, err)
			continue
		}
		pk.creds = append(pk.creds, cred)
	}
	return pk, nil
}

func (s *AuthService) storeCeremony(ctx context.Context, kind, userID string, sessionData *webauthn.SessionData) (string, error) {
	rec := ceremonyRecord{Kind: kind, UserID: userID, Session: *sessionData}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode ceremony: %w", err)
	}
	sessionID := uuid.New().String()
	if err := s.store.SetCeremony(ctx, sessionID, data); err != nil {
		return "", fmt.Errorf("store ceremony: %w", err)
	}
	return sessionID, nil
}

func (s *AuthService) loadCeremony(ctx context.Context, sessionID, kind string) (*ceremonyRecord, error) {
	data, err := s.store.GetCeremony(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrCeremonyExpired
	}
	var rec ceremonyRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Kind != kind {
		return nil, ErrCeremonyExpired
	}
	return &rec, nil
}
