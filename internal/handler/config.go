package handler

import (
	"net/http"

	"github.com/teamsync/internal/config"
)

// ConfigHandler отдаёт режимы кеша и публичные параметры пушей.
type ConfigHandler struct {
	cfg            *config.Config
	vapidPublicKey string
}

// NewConfigHandler создаёт обработчик конфигурации. Пустой vapidPublicKey — пуши выключены.
func NewConfigHandler(cfg *config.Config, vapidPublicKey string) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, vapidPublicKey: vapidPublicKey}
}

func (h *ConfigHandler) GetCacheConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"typing_reset":    h.cfg.Cache.TypingReset,
		"typing_delay_ms": h.cfg.Cache.TypingDelay.Milliseconds(),
		"chat_order":      h.cfg.Cache.ChatOrder,
		"staging":         h.cfg.Staging.Backend,
	})
}

// GetPushConfig возвращает публичный VAPID-ключ для подписки на пуши (если включены).
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.vapidPublicKey,
	})
}
