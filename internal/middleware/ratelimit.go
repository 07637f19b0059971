package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	rateLimitWindow = time.Minute
	rateLimitMaxIP  = 300
)

// limitResult — итог проверки лимита для заголовков ответа.
type limitResult struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// slidingWindow — скользящее окно в памяти: по ключу хранятся моменты принятых запросов.
type slidingWindow struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{hits: make(map[string][]time.Time), limit: limit, window: window, now: time.Now}
}

func (l *slidingWindow) take(key string) limitResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	hits := l.hits[key]
	first := 0
	for first < len(hits) && !hits[first].After(cutoff) {
		first++
	}
	hits = hits[first:]
	if len(hits) == 0 {
		delete(l.hits, key)
	}
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return limitResult{resetAt: hits[0].Add(l.window)}
	}
	hits = append(hits, now)
	l.hits[key] = hits
	return limitResult{allowed: true, remaining: l.limit - len(hits), resetAt: hits[0].Add(l.window)}
}

var inspectLimiter = newSlidingWindow(rateLimitMaxIP, rateLimitWindow)

// RateLimitAPI ограничивает запросы по адресу соединения. 429 при превышении.
func RateLimitAPI(next http.Handler) http.Handler {
	return limitByIP(inspectLimiter, next)
}

func limitByIP(l *slidingWindow, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		res := l.take(ip)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.resetAt.Unix(), 10))
		if !res.allowed {
			retry := int(time.Until(res.resetAt).Seconds()) + 1
			h.Set("Retry-After", strconv.Itoa(retry))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
