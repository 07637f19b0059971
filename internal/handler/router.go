package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/teamsync/internal/middleware"
)

// NewRouter собирает inspection API агента.
func NewRouter(cacheH *CacheHandler, configH *ConfigHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	// без RealIP: InternalOnly доверяет только адресу соединения
	r.Use(chimw.RequestID)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(middleware.InternalOnly)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Inspect-Token"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Route("/api", func(r chi.Router) {
		r.Get("/config/cache", configH.GetCacheConfig)
		r.Get("/config/push", configH.GetPushConfig)
		r.Get("/viewer", cacheH.GetViewer)
		r.Get("/teams/{id}/members", cacheH.GetMembers)
		r.Get("/discussions", cacheH.GetDiscussions)
		r.Get("/discussions/{id}/comments", cacheH.GetComments)
		r.Get("/chats", cacheH.GetChats)
		r.Get("/chats/{id}/messages", cacheH.GetMessages)
		r.Get("/chats/{id}/messages/{messageId}/thread", cacheH.GetThread)
		r.Get("/unread", cacheH.GetUnread)
		r.Get("/search", cacheH.Search)
	})
	return r
}
