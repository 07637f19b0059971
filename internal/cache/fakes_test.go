package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/realtime"
	"github.com/teamsync/internal/remote"
)

const viewerID = "u-viewer"

func ptr[T any](v T) *T { return &v }

type fakeCall struct {
	Method string
	Path   string
	Req    remote.Request
}

// fakeCaller отвечает на вызовы по маршрутам "METHOD path".
type fakeCaller struct {
	mu      sync.Mutex
	routes  map[string]func(remote.Request) (any, error)
	gates   map[string]chan struct{}
	entered chan string
	calls   []fakeCall
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		routes:  make(map[string]func(remote.Request) (any, error)),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (f *fakeCaller) handle(method, path string, fn func(remote.Request) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeCaller) reply(method, path string, v any) {
	f.handle(method, path, func(remote.Request) (any, error) { return v, nil })
}

// block задерживает ответы на маршрут до вызова release.
func (f *fakeCaller) block(method, path string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[method+" "+path] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeCaller) Call(ctx context.Context, path string, req remote.Request) (json.RawMessage, error) {
	key := req.Method + " " + path
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Method: req.Method, Path: path, Req: req})
	fn := f.routes[key]
	gate := f.gates[key]
	f.mu.Unlock()

	if gate != nil {
		f.entered <- key
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn == nil {
		return nil, &remote.Error{Status: http.StatusNotFound, Path: path}
	}
	v, err := fn(req)
	if err != nil || v == nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakeCaller) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeCaller) last(method, path string) remote.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method && f.calls[i].Path == path {
			return f.calls[i].Req
		}
	}
	return remote.Request{}
}

// fakeTransport вызывает обработчики синхронно из fire и записывает Emit и On в общий журнал.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]map[int]realtime.Handler
	next     int
	log      []string
	emitted  []model.RoomPayload
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]map[int]realtime.Handler)}
}

func (t *fakeTransport) ID() string { return "sock-test" }

func (t *fakeTransport) On(event string, h realtime.Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	if t.handlers[event] == nil {
		t.handlers[event] = make(map[int]realtime.Handler)
	}
	t.handlers[event][id] = h
	t.log = append(t.log, "on:"+event)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.handlers[event][id]; ok {
			delete(t.handlers[event], id)
			t.log = append(t.log, "off:"+event)
		}
	}
}

func (t *fakeTransport) Emit(event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = append(t.log, "emit:"+event)
	if p, ok := payload.(model.RoomPayload); ok {
		t.emitted = append(t.emitted, p)
	}
	return nil
}

func (t *fakeTransport) fire(tb testing.TB, event string, payload any) {
	tb.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(tb, err)
	t.mu.Lock()
	hs := make([]realtime.Handler, 0, len(t.handlers[event]))
	for _, h := range t.handlers[event] {
		hs = append(hs, h)
	}
	t.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (t *fakeTransport) handlerCount(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers[event])
}

func (t *fakeTransport) journal() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.log...)
}

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

// testInitialData: команда t1 (лидер — зритель), обсуждения d1 (активное) и d9 (архивное),
// чаты c1 (с u2) и c2 (только зритель).
func testInitialData() *model.InitialData {
	return &model.InitialData{
		User: &model.UserDTO{
			ID:                  viewerID,
			Email:               "viewer@example.com",
			DisplayName:         ptr("Viewer"),
			DefaultTeamID:       "t1",
			PinnedDiscussionIDs: []string{},
		},
		Teams: []model.TeamDTO{
			{ID: "t1", Name: ptr("Core"), TeamLeaderID: viewerID, MemberIDs: []string{viewerID, "u2"}},
			{ID: "t2", Name: ptr("Other"), TeamLeaderID: "u3"},
		},
		CurrentTeamID: "t1",
		Discussions: []model.DiscussionDTO{
			{
				ID: "d1", TeamID: "t1", Name: ptr("Roadmap"), CreatedUserID: viewerID,
				MemberIDs: []string{viewerID, "u2"}, IsArchived: ptr(false), FirstCommentID: "cm1",
				LastUpdatedAt: ptr(t0),
				Comments:      []model.CommentDTO{{ID: "cm1", DiscussionID: "d1", CreatedUserID: viewerID, Content: ptr("first"), CreatedAt: t0}},
			},
			{
				ID: "d9", TeamID: "t1", Name: ptr("Old"), CreatedUserID: viewerID,
				MemberIDs: []string{viewerID}, IsArchived: ptr(true), LastUpdatedAt: ptr(t0),
			},
		},
		Chats: []model.ChatDTO{
			{ID: "c1", TeamID: "t1", CreatedUserID: viewerID, ChatParticipantIDs: []string{viewerID, "u2"}, NumberOfMessagesPerChat: ptr(0), LastUpdatedAt: ptr(t0)},
			{ID: "c2", TeamID: "t1", CreatedUserID: viewerID, ChatParticipantIDs: []string{viewerID}, NumberOfMessagesPerChat: ptr(0), LastUpdatedAt: ptr(t1)},
		},
	}
}

type testEnv struct {
	store     *Store
	caller    *fakeCaller
	transport *fakeTransport
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWith(t, opts, testInitialData())
}

func newTestEnvWith(t *testing.T, opts Options, data *model.InitialData) *testEnv {
	t.Helper()
	env := &testEnv{caller: newFakeCaller(), transport: newFakeTransport()}
	env.caller.reply(http.MethodGet, pathInitialData, data)
	opts.Caller = env.caller
	opts.Transport = env.transport
	env.store = New(opts)
	require.NoError(t, env.store.Load(context.Background()))
	require.NoError(t, env.store.Start())
	t.Cleanup(func() { _ = env.store.Close() })
	return env
}

func (e *testEnv) viewer(t *testing.T) *Viewer {
	t.Helper()
	v, err := e.store.Viewer()
	require.NoError(t, err)
	return v
}

// withMembers загружает состав команды t1.
func (e *testEnv) withMembers(t *testing.T, members ...model.UserDTO) {
	t.Helper()
	e.caller.reply(http.MethodGet, pathTeamMembers("t1"), members)
	require.NoError(t, e.store.LoadMembers(context.Background(), "t1"))
}

// withMessages загружает первую страницу сообщений чата.
func (e *testEnv) withMessages(t *testing.T, chatID string, msgs ...model.MessageDTO) {
	t.Helper()
	e.caller.reply(http.MethodGet, pathMessages(chatID), msgs)
	require.NoError(t, e.store.LoadMessages(context.Background(), chatID, 1))
}

func msg(id string, at time.Time) model.MessageDTO {
	return model.MessageDTO{ID: id, CreatedUserID: "u2", Content: ptr("text " + id), CreatedAt: at}
}

func ids[T any](items []*T, key func(*T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, key(it))
	}
	return out
}
