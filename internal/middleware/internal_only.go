package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// InternalOnly пропускает запросы только с loopback/приватных IP или с заголовком
// X-Inspect-Token == INSPECT_TOKEN. Inspection API отдаёт содержимое переписки.
func InternalOnly(next http.Handler) http.Handler {
	token := strings.TrimSpace(os.Getenv("INSPECT_TOKEN"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("X-Inspect-Token") == token {
			next.ServeHTTP(w, r)
			return
		}
		ipStr, _, _ := net.SplitHostPort(r.RemoteAddr)
		if ipStr == "" {
			ipStr = r.RemoteAddr
		}
		if ipStr != "" && isPrivateIP(ipStr) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
