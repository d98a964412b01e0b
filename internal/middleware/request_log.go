package middleware

import (
	"net/http"
	"time"

	"github.com/rentline/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path и время выполнения
// (асинхронно, не блокирует). Query в лог не пишется: /auth/ws принимает
// access_token параметром запроса. /health не логируется.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(w, r)
	})
}
