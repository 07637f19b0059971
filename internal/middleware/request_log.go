package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teamsync/internal/logger"
)

// RequestLog логирует время запроса; ответы с ошибкой пишутся всегда, со статусом.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)
		if sw.status >= http.StatusBadRequest {
			logger.Info(failedRequestLine(r, sw.status, time.Since(start)))
			return
		}
		logger.LogDuration("http "+r.Method+" "+r.URL.Path, start)
	})
}

// failedRequestLine — строка лога для ответа с ошибкой; токен инспекции маскируется.
func failedRequestLine(r *http.Request, status int, d time.Duration) string {
	line := fmt.Sprintf("http %s %s status=%d duration_ms=%d", r.Method, r.URL.Path, status, d.Milliseconds())
	if tok := r.Header.Get("X-Inspect-Token"); tok != "" {
		line += " token=" + MaskSecret(tok)
	}
	return line
}

// MaskSecret маскирует id сессии и токены в логах (видны только первые 4 символа).
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
