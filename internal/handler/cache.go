package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teamsync/internal/cache"
)

// CacheReader — то, что inspection API читает из кеша.
type CacheReader interface {
	Viewer() (*cache.Viewer, error)
	Members(teamID string) ([]*cache.Member, error)
	ActiveDiscussions() ([]*cache.Discussion, error)
	ArchivedDiscussions() ([]*cache.Discussion, error)
	OrderedChats() ([]*cache.Chat, error)
	Comments(discussionID string) ([]*cache.Comment, error)
	Messages(chatID string) ([]*cache.Message, error)
	ThreadMessages(chatID, messageID string) ([]*cache.Message, error)
	UnreadCounts() (cache.UnreadCounts, error)
	SearchDiscussions(ctx context.Context, query string) ([]cache.SearchResult, error)
	SearchMessages(ctx context.Context, query string) ([]cache.SearchResult, error)
}

// CacheHandler — read-only просмотр кеша агента.
type CacheHandler struct {
	cache CacheReader
}

func NewCacheHandler(c CacheReader) *CacheHandler {
	return &CacheHandler{cache: c}
}

// respond пишет результат чтения кеша или ошибку.
func respond[T any](w http.ResponseWriter, v T, err error) {
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CacheHandler) GetViewer(w http.ResponseWriter, r *http.Request) {
	v, err := h.cache.Viewer()
	respond(w, v, err)
}

// GetMembers — состав команды; 409, если он ещё не загружен.
func (h *CacheHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.cache.Members(chi.URLParam(r, "id"))
	if err == nil && members == nil {
		writeError(w, http.StatusConflict, "members not loaded")
		return
	}
	respond(w, members, err)
}

// GetDiscussions — активные или (?archived=true) архивные обсуждения в порядке отображения.
func (h *CacheHandler) GetDiscussions(w http.ResponseWriter, r *http.Request) {
	var (
		ds  []*cache.Discussion
		err error
	)
	if queryBool(r, "archived") {
		ds, err = h.cache.ArchivedDiscussions()
	} else {
		ds, err = h.cache.ActiveDiscussions()
	}
	respond(w, nonNil(ds), err)
}

func (h *CacheHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	cs, err := h.cache.Comments(chi.URLParam(r, "id"))
	respond(w, nonNil(cs), err)
}

func (h *CacheHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	cs, err := h.cache.OrderedChats()
	respond(w, nonNil(cs), err)
}

func (h *CacheHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ms, err := h.cache.Messages(chi.URLParam(r, "id"))
	respond(w, nonNil(ms), err)
}

func (h *CacheHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ms, err := h.cache.ThreadMessages(chi.URLParam(r, "id"), chi.URLParam(r, "messageId"))
	respond(w, nonNil(ms), err)
}

func (h *CacheHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	counts, err := h.cache.UnreadCounts()
	respond(w, counts, err)
}

// Search — поиск на сервере: ?q=...&in=discussions|messages.
func (h *CacheHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	var (
		res []cache.SearchResult
		err error
	)
	switch r.URL.Query().Get("in") {
	case "", "discussions":
		res, err = h.cache.SearchDiscussions(r.Context(), q)
	case "messages":
		res, err = h.cache.SearchMessages(r.Context(), q)
	default:
		writeError(w, http.StatusBadRequest, "in must be discussions or messages")
		return
	}
	respond(w, nonNil(res), err)
}

// nonNil — пустой список отдаётся как [], а не null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
