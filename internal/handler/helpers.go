package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teamsync/internal/cache"
	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/remote"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeCacheError переводит ошибку кеша в HTTP-статус.
func writeCacheError(w http.ResponseWriter, err error) {
	var re *remote.Error
	switch {
	case errors.Is(err, cache.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "cache not loaded")
	case errors.Is(err, cache.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case remote.IsStatus(err, http.StatusUnauthorized), remote.IsStatus(err, http.StatusForbidden):
		writeError(w, http.StatusForbidden, "session rejected by server")
	case errors.As(err, &re):
		writeError(w, http.StatusBadGateway, re.Error())
	default:
		logger.Errorf("handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
