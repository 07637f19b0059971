package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsync/internal/cache"
	"github.com/teamsync/internal/config"
	"github.com/teamsync/internal/remote"
)

type stubCache struct {
	viewer   *cache.Viewer
	members  map[string][]*cache.Member
	active   []*cache.Discussion
	archived []*cache.Discussion
	comments map[string][]*cache.Comment
	chats    []*cache.Chat
	messages map[string][]*cache.Message
	unread   cache.UnreadCounts
	search   []cache.SearchResult
	queries  []string
	err      error
}

func (s *stubCache) Viewer() (*cache.Viewer, error) { return s.viewer, s.err }

func (s *stubCache) Members(teamID string) ([]*cache.Member, error) {
	if s.err != nil {
		return nil, s.err
	}
	m, ok := s.members[teamID]
	if !ok && teamID != "t-unloaded" {
		return nil, fmt.Errorf("cache.Team %s: %w", teamID, cache.ErrNotFound)
	}
	return m, nil
}

func (s *stubCache) ActiveDiscussions() ([]*cache.Discussion, error)   { return s.active, s.err }
func (s *stubCache) ArchivedDiscussions() ([]*cache.Discussion, error) { return s.archived, s.err }
func (s *stubCache) OrderedChats() ([]*cache.Chat, error)              { return s.chats, s.err }

func (s *stubCache) Comments(id string) ([]*cache.Comment, error) {
	c, ok := s.comments[id]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return c, nil
}

func (s *stubCache) Messages(id string) ([]*cache.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return m, nil
}

func (s *stubCache) ThreadMessages(chatID, messageID string) ([]*cache.Message, error) {
	for _, m := range s.messages[chatID] {
		if m.ID == messageID {
			return m.Thread, nil
		}
	}
	return nil, cache.ErrNotFound
}

func (s *stubCache) UnreadCounts() (cache.UnreadCounts, error) { return s.unread, s.err }

func (s *stubCache) SearchDiscussions(_ context.Context, q string) ([]cache.SearchResult, error) {
	s.queries = append(s.queries, "discussions:"+q)
	return s.search, s.err
}

func (s *stubCache) SearchMessages(_ context.Context, q string) ([]cache.SearchResult, error) {
	s.queries = append(s.queries, "messages:"+q)
	return s.search, s.err
}

func newServer(c *stubCache) http.Handler {
	cfg := &config.Config{
		Cache:   config.CacheConfig{TypingReset: "debounce", TypingDelay: 2 * time.Second, ChatOrder: "recency"},
		Staging: config.StagingConfig{Backend: config.StagingMemory},
	}
	return NewRouter(NewCacheHandler(c), NewConfigHandler(cfg, "BPUB"), []string{"*"})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := get(t, newServer(&stubCache{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestViewer(t *testing.T) {
	c := &stubCache{viewer: &cache.Viewer{ID: "u1", Email: "u1@x", CurrentTeamID: "t1"}}
	rec := get(t, newServer(c), "/api/viewer")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[map[string]any](t, rec)
	assert.Equal(t, "u1", v["id"])
	assert.Equal(t, "t1", v["currentTeamId"])

	c.err = cache.ErrNotLoaded
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newServer(c), "/api/viewer").Code)
}

func TestMembers(t *testing.T) {
	c := &stubCache{members: map[string][]*cache.Member{"t1": {{ID: "u2", DisplayName: "Ann"}}}}
	h := newServer(c)

	rec := get(t, h, "/api/teams/t1/members")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	assert.Equal(t, http.StatusConflict, get(t, h, "/api/teams/t-unloaded/members").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/teams/nope/members").Code)
}

func TestDiscussionsAndComments(t *testing.T) {
	c := &stubCache{
		active:   []*cache.Discussion{{ID: "d1"}},
		archived: []*cache.Discussion{{ID: "d9"}},
		comments: map[string][]*cache.Comment{"d1": nil},
	}
	h := newServer(c)

	active := decode[[]map[string]any](t, get(t, h, "/api/discussions"))
	require.Len(t, active, 1)
	assert.Equal(t, "d1", active[0]["id"])
	archived := decode[[]map[string]any](t, get(t, h, "/api/discussions?archived=true"))
	require.Len(t, archived, 1)
	assert.Equal(t, "d9", archived[0]["id"])

	rec := get(t, h, "/api/discussions/d1/comments")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/discussions/zz/comments").Code)
}

func TestChatsMessagesThread(t *testing.T) {
	c := &stubCache{
		chats: []*cache.Chat{{ID: "c1"}},
		messages: map[string][]*cache.Message{
			"c1": {{ID: "p", Thread: []*cache.Message{{ID: "r1", ParentMessageID: "p"}}}},
		},
	}
	h := newServer(c)

	assert.Len(t, decode[[]map[string]any](t, get(t, h, "/api/chats")), 1)
	msgs := decode[[]map[string]any](t, get(t, h, "/api/chats/c1/messages"))
	require.Len(t, msgs, 1)
	thread := decode[[]map[string]any](t, get(t, h, "/api/chats/c1/messages/p/thread"))
	require.Len(t, thread, 1)
	assert.Equal(t, "r1", thread[0]["id"])
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/chats/c1/messages/x/thread").Code)
}

func TestUnread(t *testing.T) {
	c := &stubCache{unread: cache.UnreadCounts{Comments: 2, Discussions: map[string]int{"d1": 2}}}
	u := decode[cache.UnreadCounts](t, get(t, newServer(c), "/api/unread"))
	assert.Equal(t, 2, u.Comments)
	assert.Equal(t, map[string]int{"d1": 2}, u.Discussions)
}

func TestSearch(t *testing.T) {
	c := &stubCache{search: []cache.SearchResult{{ParentID: "d1", ItemID: "cm1", Excerpt: "<mark>x</mark>"}}}
	h := newServer(c)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/search").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/search?q=x&in=files").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/api/search?q=x").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/api/search?q=y&in=messages").Code)
	assert.Equal(t, []string{"discussions:x", "messages:y"}, c.queries)

	c.err = fmt.Errorf("cache.SearchMessages: %w", &remote.Error{Status: http.StatusForbidden, Path: "/api/v1/teams/t1/search/messages"})
	assert.Equal(t, http.StatusForbidden, get(t, h, "/api/search?q=y&in=messages").Code)

	c.err = fmt.Errorf("cache.SearchMessages: %w", &remote.Error{Status: http.StatusInternalServerError, Path: "/api/v1/teams/t1/search/messages"})
	assert.Equal(t, http.StatusBadGateway, get(t, h, "/api/search?q=y&in=messages").Code)
}

func TestConfigEndpoints(t *testing.T) {
	h := newServer(&stubCache{})
	cc := decode[map[string]any](t, get(t, h, "/api/config/cache"))
	assert.Equal(t, "recency", cc["chat_order"])
	assert.EqualValues(t, 2000, cc["typing_delay_ms"])

	pc := decode[map[string]any](t, get(t, h, "/api/config/push"))
	assert.Equal(t, true, pc["enabled"])
	assert.Equal(t, "BPUB", pc["vapid_public_key"])
}

func TestPublicClientsRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/viewer", nil)
	req.RemoteAddr = "8.8.8.8:1234"
	rec := httptest.NewRecorder()
	newServer(&stubCache{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/viewer", nil)
	req.RemoteAddr = "8.8.8.8:1234"
	req.Header.Set("X-Real-Ip", "127.0.0.1")
	rec = httptest.NewRecorder()
	newServer(&stubCache{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "forwarded headers are not trusted")
}
