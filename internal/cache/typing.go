package cache

import (
	"time"

	"github.com/teamsync/internal/model"
)

type typingKey struct {
	chatID string
	userID string
}

// typingTimers сбрасывает флаг «печатает» через Options.TypingDelay.
// Все поля меняются только под блокировкой Store.
type typingTimers struct {
	s *Store
	// debounce: один таймер на пару (чат, участник); gen отсекает устаревшие срабатывания
	timers map[typingKey]*time.Timer
	gen    map[typingKey]uint64
	// per_event: все запущенные таймеры, чтобы остановить их при Close
	fired map[*time.Timer]struct{}
}

func newTypingTimers(s *Store) *typingTimers {
	return &typingTimers{
		s:      s,
		timers: make(map[typingKey]*time.Timer),
		gen:    make(map[typingKey]uint64),
		fired:  make(map[*time.Timer]struct{}),
	}
}

func (t *typingTimers) schedule(key typingKey) {
	delay := t.s.opts.TypingDelay
	if t.s.opts.TypingReset == TypingPerEvent {
		var timer *time.Timer
		timer = time.AfterFunc(delay, func() {
			t.s.lock()
			defer t.s.unlock()
			delete(t.fired, timer)
			t.s.setTyping(key, false)
		})
		t.fired[timer] = struct{}{}
		return
	}
	if old, ok := t.timers[key]; ok {
		old.Stop()
	}
	t.gen[key]++
	gen := t.gen[key]
	t.timers[key] = time.AfterFunc(delay, func() {
		t.s.lock()
		defer t.s.unlock()
		if t.gen[key] != gen {
			return
		}
		delete(t.timers, key)
		delete(t.gen, key)
		t.s.setTyping(key, false)
	})
}

func (t *typingTimers) stop() {
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
		t.gen[key]++
	}
	for timer := range t.fired {
		timer.Stop()
	}
	clear(t.fired)
}

// setTyping ставит флаг участнику команды, которой принадлежит чат. Под блокировкой.
func (s *Store) setTyping(key typingKey, typing bool) {
	v := s.viewer
	if v == nil || s.closed {
		return
	}
	teamID := v.CurrentTeamID
	if c := v.chat(key.chatID); c != nil && c.TeamID != "" {
		teamID = c.TeamID
	}
	t := v.team(teamID)
	if t == nil {
		return
	}
	m, ok := t.Members[key.userID]
	if !ok || m.IsChatParticipantTyping == typing {
		return
	}
	m.IsChatParticipantTyping = typing
	s.notify(ChangeTyping, key.userID, key.chatID)
}

func (s *Store) handleTypingStatus(ev *model.TypingEvent) {
	s.lock()
	defer s.unlock()
	if s.viewer == nil || s.closed || ev.UserID == s.viewer.ID {
		return
	}
	key := typingKey{chatID: ev.ChatID, userID: ev.UserID}
	s.setTyping(key, true)
	s.typing.schedule(key)
}
