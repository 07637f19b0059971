package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

// Store — корень кеша: зритель, realtime-подписки и открытые комнаты.
// Жизненный цикл: New -> Load -> Start -> ... -> Close.
type Store struct {
	opts Options

	mu      sync.Mutex
	viewer  *Viewer
	initial *model.InitialData
	loading map[string]bool
	pending []Change
	closed  bool

	offs            []func()
	teamRoom        string
	discussionRooms map[string]func()
	chatRooms       map[string]func()
	typing          *typingTimers

	subsMu  sync.Mutex
	subs    map[uint64]func(Change)
	nextSub uint64
}

func New(opts Options) *Store {
	opts.setDefaults()
	s := &Store{
		opts:            opts,
		loading:         make(map[string]bool),
		discussionRooms: make(map[string]func()),
		chatRooms:       make(map[string]func()),
		subs:            make(map[uint64]func(Change)),
	}
	s.typing = newTypingTimers(s)
	return s
}

func (s *Store) lock() { s.mu.Lock() }

// unlock снимает блокировку и доставляет накопленные изменения подписчикам.
func (s *Store) unlock() {
	changes := s.pending
	s.pending = nil
	s.mu.Unlock()
	s.publish(changes)
}

func (s *Store) notify(kind ChangeKind, id, parentID string) {
	s.pending = append(s.pending, Change{Kind: kind, ID: id, ParentID: parentID})
}

// Subscribe регистрирует получателя изменений; возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.subsMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// update выполняет fn под блокировкой, если зритель загружен.
func (s *Store) update(fn func(v *Viewer) error) error {
	s.lock()
	defer s.unlock()
	if s.viewer == nil {
		return ErrNotLoaded
	}
	return fn(s.viewer)
}

// guard ставит флаг загрузки; false — такая загрузка уже идёт. Вызывается под блокировкой.
func (s *Store) guard(key string) bool {
	if s.loading[key] {
		return false
	}
	s.loading[key] = true
	return true
}

func (s *Store) release(key string) {
	s.lock()
	delete(s.loading, key)
	s.unlock()
}

// call выполняет удалённый вызов без блокировки и проверяет ответ.
// dst == nil — тело ответа не нужно.
func (s *Store) call(ctx context.Context, op, path string, req remote.Request, dst model.Validator) error {
	defer logger.DeferLogDuration(op, time.Now())()
	raw, err := s.opts.Caller.Call(ctx, path, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if dst == nil {
		return nil
	}
	if err := model.Decode(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) renderHTML(content string) string {
	if s.opts.Renderer == nil || content == "" {
		return ""
	}
	out, err := s.opts.Renderer.Render(content)
	if err != nil {
		logger.Errorf("cache: render: %v", err)
		return ""
	}
	return out
}

// Load загружает данные зрителя и строит кеш с нуля.
func (s *Store) Load(ctx context.Context) error {
	var data model.InitialData
	if err := s.call(ctx, "cache.Load", pathInitialData, remote.Request{Method: http.MethodGet}, &data); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	s.initial = &data
	s.viewer = newViewer(&data, s.renderHTML)
	s.notify(ChangeViewer, s.viewer.ID, "")
	logger.Infof("cache: loaded viewer=%s teams=%d discussions=%d chats=%d",
		s.viewer.ID, len(s.viewer.Teams),
		len(s.viewer.ActiveDiscussions)+len(s.viewer.ArchivedDiscussions), len(s.viewer.Chats))
	return nil
}

// Start подписывается на события уровня команды и входит в комнату текущей команды.
func (s *Store) Start() error {
	s.lock()
	defer s.unlock()
	if s.viewer == nil {
		return fmt.Errorf("cache.Start: %w", ErrNotLoaded)
	}
	if s.closed {
		return fmt.Errorf("cache.Start: store closed")
	}
	if len(s.offs) > 0 {
		return nil
	}
	s.joinTeamRoom(s.viewer.CurrentTeamID)
	t := s.opts.Transport
	s.offs = append(s.offs,
		on(s, model.EventDiscussion, s.handleDiscussionEvent),
		on(s, model.EventChat, s.handleChatEvent),
		on(s, model.EventTypingStatus, s.handleTypingStatus),
		on(s, model.EventOnlineStatus, s.handleOnlineStatus),
		on(s, model.EventTeam, s.handleTeamEvent),
		on(s, model.EventUnreadComment, s.handleUnreadComment),
		on(s, model.EventUnreadByUserMessage, s.handleUnreadByUserMessage),
		on(s, model.EventUnreadBySomeoneMessage, s.handleUnreadBySomeoneMessage),
		t.On(model.EventReconnect, s.handleReconnect),
		t.On(model.EventDisconnect, func(json.RawMessage) { logger.Info("cache: realtime disconnected") }),
		t.On(model.EventError, func(data json.RawMessage) { logger.Errorf("cache: realtime error: %s", data) }),
	)
	return nil
}

// Close покидает комнаты, снимает обработчики и останавливает таймеры. Повторный вызов ничего не делает.
func (s *Store) Close() error {
	s.lock()
	defer s.unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeRooms()
	if s.teamRoom != "" {
		s.emit(model.EventLeaveTeamRoom, model.RoomPayload{TeamID: s.teamRoom})
		s.teamRoom = ""
	}
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.typing.stop()
	return nil
}

// handleReconnect пересобирает кеш из последних полных данных и заново входит в комнаты.
func (s *Store) handleReconnect(json.RawMessage) {
	defer logger.DeferLogDuration("cache.reconnect", time.Now())()
	s.lock()
	defer s.unlock()
	if s.initial == nil || s.closed {
		return
	}
	s.typing.stop()
	old := s.viewer
	s.viewer = newViewer(s.initial, s.renderHTML)
	keepRosters(old, s.viewer)
	s.notify(ChangeViewer, s.viewer.ID, "")
	logger.Info("cache: realtime reconnected, cache rebuilt")

	if s.teamRoom != "" && s.teamRoom != s.viewer.CurrentTeamID {
		s.emit(model.EventLeaveTeamRoom, model.RoomPayload{TeamID: s.teamRoom})
	}
	s.joinTeamRoom(s.viewer.CurrentTeamID)
	for id := range s.discussionRooms {
		s.emit(model.EventJoinDiscussionRoom, model.RoomPayload{DiscussionID: id})
	}
	for id := range s.chatRooms {
		s.emit(model.EventJoinChatRoom, model.RoomPayload{ChatID: id})
	}
}

// Последние полные данные: кеш пересобирается из них после переподключения,
// поэтому удалённое из кеша удаляется и отсюда. Под блокировкой.

func (s *Store) rememberDiscussion(dto *model.DiscussionDTO) {
	if s.initial == nil || slices.ContainsFunc(s.initial.Discussions, func(d model.DiscussionDTO) bool { return d.ID == dto.ID }) {
		return
	}
	s.initial.Discussions = append(s.initial.Discussions, *dto)
}

func (s *Store) rememberChat(dto *model.ChatDTO) {
	if s.initial == nil || slices.ContainsFunc(s.initial.Chats, func(c model.ChatDTO) bool { return c.ID == dto.ID }) {
		return
	}
	s.initial.Chats = append(s.initial.Chats, *dto)
}

func (s *Store) forgetDiscussion(id string, unread []string) {
	if s.initial == nil {
		return
	}
	s.initial.Discussions = slices.DeleteFunc(s.initial.Discussions, func(d model.DiscussionDTO) bool { return d.ID == id })
	s.forgetUnread(unread)
}

func (s *Store) forgetChat(id string, unread []string) {
	if s.initial == nil {
		return
	}
	s.initial.Chats = slices.DeleteFunc(s.initial.Chats, func(c model.ChatDTO) bool { return c.ID == id })
	s.forgetUnread(unread)
}

func (s *Store) forgetTeam(id string) {
	if s.initial == nil {
		return
	}
	s.initial.Teams = slices.DeleteFunc(s.initial.Teams, func(t model.TeamDTO) bool { return t.ID == id })
}

// forgetCurrentTeam — текущая команда удалена; next == "" — команд не осталось.
func (s *Store) forgetCurrentTeam(id, next string) {
	s.forgetTeam(id)
	if s.initial == nil {
		return
	}
	s.initial.CurrentTeamID = next
	s.initial.Discussions, s.initial.Chats = nil, nil
}

func (s *Store) forgetUnread(ids []string) {
	u := s.initial.User
	if u == nil || len(ids) == 0 {
		return
	}
	gone := func(id string) bool { return slices.Contains(ids, id) }
	u.UnreadCommentIDs = slices.DeleteFunc(slices.Clone(u.UnreadCommentIDs), gone)
	u.UnreadByUserMessageIDs = slices.DeleteFunc(slices.Clone(u.UnreadByUserMessageIDs), gone)
	u.UnreadBySomeoneMessageIDs = slices.DeleteFunc(slices.Clone(u.UnreadBySomeoneMessageIDs), gone)
}

func (s *Store) joinTeamRoom(teamID string) {
	s.teamRoom = teamID
	if teamID == "" {
		return
	}
	s.emit(model.EventJoinTeamRoom, model.RoomPayload{TeamID: teamID})
}

func (s *Store) emit(event string, payload model.RoomPayload) {
	if err := s.opts.Transport.Emit(event, payload); err != nil {
		logger.Errorf("cache: emit %s: %v", event, err)
	}
}

// on регистрирует обработчик с разбором и проверкой payload.
func on[T any, P interface {
	*T
	model.Validator
}](s *Store, event string, fn func(P)) func() {
	return s.opts.Transport.On(event, func(data json.RawMessage) {
		defer logger.DeferLogDuration("cache."+event, time.Now())()
		ev := P(new(T))
		if err := model.Decode(data, ev); err != nil {
			logger.Errorf("cache: %s: %v", event, err)
			return
		}
		fn(ev)
	})
}

// dtoList — список DTO с поэлементной проверкой.
type dtoList[T any, P interface {
	*T
	model.Validator
}] []T

func (l *dtoList[T, P]) Validate() error {
	for i := range *l {
		if err := P(&(*l)[i]).Validate(); err != nil {
			return err
		}
	}
	return nil
}
