package middleware

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/service"
)

// BearerToken извлекает токен из Authorization: Bearer или из query-параметра
// access_token (браузерный WebSocket не умеет выставлять заголовки).
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return r.URL.Query().Get("access_token")
}

// BearerAuth проверяет access-токен и кладёт user_id и session_id в контекст.
// Истёкший или невалидный токен — 401; решение о refresh принимает клиент.
func BearerAuth(tokens *service.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}
			userID, sessionID, err := tokens.ParseAccess(token)
			if err != nil {
				logger.Debugf("bearer rejected (%s): %v", MaskToken(token), err)
				writeUnauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"error":"unauthorized"}`)
}
