package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/middleware"
	"github.com/rentline/internal/repository"
	"github.com/rentline/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimitExceeded):
			writeError(w, http.StatusTooManyRequests, "Слишком много попыток входа. Попробуйте позже.")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Неверный email или пароль")
		default:
			logger.Errorf("login: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.auth.Register(r.Context(), req)
	if err != nil {
		var verr service.ValidationError
		switch {
		case errors.As(err, &verr):
			writeFieldErrors(w, verr)
		case errors.Is(err, service.ErrEmailTaken):
			writeFieldErrors(w, map[string][]string{
				"email": {"Пользователь с таким email уже зарегистрирован"},
			})
		default:
			logger.Errorf("register: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	access, err := h.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			writeError(w, http.StatusUnauthorized, "Сессия истекла, войдите снова")
			return
		}
		logger.Errorf("refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sid := middleware.GetSessionID(r.Context())
	if err := h.auth.Logout(r.Context(), userID, sid); err != nil {
		logger.Errorf("logout user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	profile, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		logger.Errorf("profile user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type challengeResponse struct {
	SessionID string          `json:"session_id"`
	Options   json.RawMessage `json:"options"`
}

type verifyRequest struct {
	SessionID  string          `json:"session_id"`
	Credential json.RawMessage `json:"credential"`
}

func (h *AuthHandler) PasskeyChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email обязателен")
		return
	}
	sessionID, options, err := h.auth.BeginPasskeyLogin(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrPasskeyNotRegistered) {
			writeError(w, http.StatusNotFound, "Passkey не настроен для этого аккаунта")
			return
		}
		logger.Errorf("passkey challenge: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{SessionID: sessionID, Options: options})
}

func (h *AuthHandler) PasskeyVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || len(req.Credential) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.auth.FinishPasskeyLogin(r.Context(), req.SessionID, req.Credential)
	if err != nil {
		if errors.Is(err, service.ErrCeremonyExpired) {
			writeError(w, http.StatusBadRequest, "Церемония входа истекла, попробуйте снова")
			return
		}
		// Неверная подпись, повреждённый attestation — неразличимы снаружи.
		logger.Errorf("passkey verify: %v", err)
		writeError(w, http.StatusUnauthorized, "Не удалось подтвердить passkey")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) PasskeyRegisterChallenge(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, options, err := h.auth.BeginPasskeyRegistration(r.Context(), userID)
	if err != nil {
		logger.Errorf("passkey register challenge user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{SessionID: sessionID, Options: options})
}

func (h *AuthHandler) PasskeyRegisterVerify(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || len(req.Credential) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.auth.FinishPasskeyRegistration(r.Context(), userID, req.SessionID, req.Credential); err != nil {
		if errors.Is(err, service.ErrCeremonyExpired) {
			writeError(w, http.StatusBadRequest, "Церемония истекла, попробуйте снова")
			return
		}
		logger.Errorf("passkey register verify user=%s: %v", userID, err)
		writeError(w, http.StatusBadRequest, "Не удалось привязать passkey")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_passkey": true})
}
