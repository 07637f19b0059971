package cache

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

type Chat struct {
	ID             string   `json:"id"`
	TeamID         string   `json:"teamId"`
	CreatedUserID  string   `json:"createdUserId"`
	ParticipantIDs []string `json:"participantIds"`
	// NumberOfMessagesPerChat — сколько всего сообщений верхнего уровня на сервере;
	// сравнивается с len(Messages), чтобы понять, есть ли ещё история.
	NumberOfMessagesPerChat int        `json:"numberOfMessagesPerChat"`
	LastUpdatedAt           time.Time  `json:"lastUpdatedAt"`
	Messages                []*Message `json:"messages"`
}

func chatKey(c *Chat) string { return c.ID }

func newChat(dto *model.ChatDTO, render renderFunc) *Chat {
	c := &Chat{ID: dto.ID, TeamID: dto.TeamID, CreatedUserID: dto.CreatedUserID}
	c.applyPatch(dto, render)
	return c
}

func (c *Chat) applyPatch(dto *model.ChatDTO, render renderFunc) {
	if dto.ChatParticipantIDs != nil {
		c.ParticipantIDs = slices.Clone(dto.ChatParticipantIDs)
	}
	if dto.LastUpdatedAt != nil {
		c.LastUpdatedAt = *dto.LastUpdatedAt
	}
	for i := range dto.Messages {
		if dto.Messages[i].ParentMessageID != "" || c.message(dto.Messages[i].ID) != nil {
			continue
		}
		c.Messages = append(c.Messages, newMessage(&dto.Messages[i], c.ID, "", render))
	}
	if dto.NumberOfMessagesPerChat != nil {
		c.NumberOfMessagesPerChat = *dto.NumberOfMessagesPerChat
	}
	if c.NumberOfMessagesPerChat < len(c.Messages) {
		c.NumberOfMessagesPerChat = len(c.Messages)
	}
}

// message ищет только среди сообщений верхнего уровня.
func (c *Chat) message(id string) *Message {
	if i := indexByID(c.Messages, id, messageKey); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// find ищет сообщение верхнего уровня или ответ; parentID сужает поиск до одного треда.
func (c *Chat) find(id, parentID string) *Message {
	if parentID != "" {
		if p := c.message(parentID); p != nil {
			return p.reply(id)
		}
		return nil
	}
	if m := c.message(id); m != nil {
		return m
	}
	for _, p := range c.Messages {
		if r := p.reply(id); r != nil {
			return r
		}
	}
	return nil
}

// insertMessage: ответ уходит в тред родителя, сообщение верхнего уровня — в чат.
// Ответ никогда не попадает в список сообщений чата.
func (c *Chat) insertMessage(m *Message) bool {
	if m.ID == "" {
		return false
	}
	if m.ParentMessageID != "" {
		p := c.message(m.ParentMessageID)
		if p == nil || p.reply(m.ID) != nil {
			return false
		}
		m.Thread = nil
		p.Thread = append(p.Thread, m)
		p.CountOfThreadMessages++
		return true
	}
	if c.message(m.ID) != nil {
		return false
	}
	c.Messages = append(c.Messages, m)
	c.NumberOfMessagesPerChat++
	if m.CreatedAt.After(c.LastUpdatedAt) {
		c.LastUpdatedAt = m.CreatedAt
	}
	return true
}

// removeMessage — обратная операция к insertMessage. Возвращает удалённое сообщение.
func (c *Chat) removeMessage(id, parentID string) *Message {
	if parentID == "" && c.message(id) == nil {
		for _, p := range c.Messages {
			if p.reply(id) != nil {
				parentID = p.ID
				break
			}
		}
	}
	if parentID != "" {
		p := c.message(parentID)
		if p == nil {
			return nil
		}
		i := indexByID(p.Thread, id, messageKey)
		if i < 0 {
			return nil
		}
		m := p.Thread[i]
		p.Thread = slices.Delete(p.Thread, i, i+1)
		if p.CountOfThreadMessages > 0 {
			p.CountOfThreadMessages--
		}
		return m
	}
	i := indexByID(c.Messages, id, messageKey)
	if i < 0 {
		return nil
	}
	m := c.Messages[i]
	c.Messages = slices.Delete(c.Messages, i, i+1)
	if c.NumberOfMessagesPerChat > 0 {
		c.NumberOfMessagesPerChat--
	}
	return m
}

func (c *Chat) hasMore() bool { return len(c.Messages) < c.NumberOfMessagesPerChat }

// LoadChats загружает чаты текущей команды; уже загруженные сообщения сохраняются.
func (s *Store) LoadChats(ctx context.Context) error {
	const key = "chats"
	var team string
	started := false
	if err := s.update(func(v *Viewer) error {
		if v.CurrentTeamID == "" {
			return ErrNotFound
		}
		team = v.CurrentTeamID
		started = s.guard(key)
		return nil
	}); err != nil {
		return fmt.Errorf("cache.LoadChats: %w", err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.ChatDTO, *model.ChatDTO]
	if err := s.call(ctx, "cache.LoadChats", pathTeamChats(team), remote.Request{Method: http.MethodGet}, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if v.CurrentTeamID != team {
			return nil
		}
		list := make([]*Chat, 0, len(dtos))
		for i := range dtos {
			dto := &dtos[i]
			if !memberOf(dto.ChatParticipantIDs, v.ID) || indexByID(list, dto.ID, chatKey) >= 0 {
				continue
			}
			c := v.chat(dto.ID)
			if c == nil {
				c = newChat(dto, s.renderHTML)
			} else {
				c.applyPatch(dto, s.renderHTML)
			}
			list = append(list, c)
		}
		v.Chats = list
		if s.initial != nil {
			s.initial.Chats = dtos
		}
		s.notify(ChangeChat, "", team)
		return nil
	})
}

// AddChat создаёт чат с участниками (зритель добавляется сам) и возвращает его id.
func (s *Store) AddChat(ctx context.Context, participantIDs []string) (string, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		if v.CurrentTeamID == "" {
			return ErrNotFound
		}
		team = v.CurrentTeamID
		if !contains(participantIDs, v.ID) {
			participantIDs = append(slices.Clone(participantIDs), v.ID)
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddChat: %w", err)
	}
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"chatParticipantIds": participantIDs}}
	var dto model.ChatDTO
	if err := s.call(ctx, "cache.AddChat", pathTeamChats(team), req, &dto); err != nil {
		return "", err
	}
	if err := s.update(func(v *Viewer) error {
		s.placeChat(v, &dto)
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddChat: %w", err)
	}
	return dto.ID, nil
}

// EditChat меняет состав участников. Если зритель больше не участник, чат уходит из кеша.
func (s *Store) EditChat(ctx context.Context, chatID string, participantIDs []string) error {
	req := remote.Request{Method: http.MethodPatch, Body: map[string]any{"chatParticipantIds": participantIDs}}
	var dto model.ChatDTO
	if err := s.call(ctx, "cache.EditChat", pathChat(chatID), req, &dto); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.placeChat(v, &dto)
		return nil
	})
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.DeleteChat", pathChat(chatID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.dropChat(v, chatID)
		return nil
	})
}

// ClearChatHistory удаляет все сообщения чата; сам чат остаётся.
func (s *Store) ClearChatHistory(ctx context.Context, chatID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.ClearChatHistory", pathMessages(chatID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.clearChat(v, chatID)
		return nil
	})
}

// MarkMessagesRead отмечает сообщения чата прочитанными зрителем.
func (s *Store) MarkMessagesRead(ctx context.Context, chatID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"chatId": chatID, "messageIds": messageIDs}}
	if err := s.call(ctx, "cache.MarkMessagesRead", pathReadMessages, req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		for _, id := range messageIDs {
			for _, removed := range v.removeUnreadByUser(id, "") {
				s.notify(ChangeRead, removed, chatID)
			}
		}
		return nil
	})
}

// HasMoreMessages сообщает, есть ли на сервере сообщения старше загруженных.
func (s *Store) HasMoreMessages(chatID string) bool {
	s.lock()
	defer s.unlock()
	if s.viewer == nil {
		return false
	}
	c := s.viewer.chat(chatID)
	return c != nil && c.hasMore()
}

// OpenChat входит в комнату чата и подписывается на его сообщения.
func (s *Store) OpenChat(chatID string) error {
	return s.update(func(v *Viewer) error {
		if v.chat(chatID) == nil {
			return fmt.Errorf("cache.OpenChat %s: %w", chatID, ErrNotFound)
		}
		if _, ok := s.chatRooms[chatID]; ok {
			return nil
		}
		s.emit(model.EventJoinChatRoom, model.RoomPayload{ChatID: chatID})
		s.chatRooms[chatID] = on(s, model.EventMessage, s.handleMessageEvent(chatID))
		return nil
	})
}

func (s *Store) CloseChat(chatID string) {
	s.lock()
	defer s.unlock()
	s.closeChatRoom(chatID)
}

func (s *Store) closeChatRoom(chatID string) {
	off, ok := s.chatRooms[chatID]
	if !ok {
		return
	}
	s.emit(model.EventLeaveChatRoom, model.RoomPayload{ChatID: chatID})
	off()
	delete(s.chatRooms, chatID)
}

func (s *Store) placeChat(v *Viewer, dto *model.ChatDTO) {
	existing := v.chat(dto.ID)
	var messages []string
	if existing != nil {
		messages = messageIDs(existing.Messages)
	}
	if v.placeChat(dto, s.renderHTML) {
		if existing == nil {
			s.rememberChat(dto)
		}
		s.notify(ChangeChat, dto.ID, "")
		return
	}
	if existing != nil {
		s.forgetChat(dto.ID, messages)
		s.closeChatRoom(dto.ID)
		s.notify(ChangeChatRemoved, dto.ID, "")
	}
}

func (s *Store) dropChat(v *Viewer, chatID string) {
	var messages []string
	if c := v.chat(chatID); c != nil {
		messages = messageIDs(c.Messages)
	}
	if v.removeChat(chatID) {
		s.forgetChat(chatID, messages)
		s.closeChatRoom(chatID)
		s.notify(ChangeChatRemoved, chatID, "")
	}
}

// messageIDs — id сообщений вместе с ответами в тредах.
func messageIDs(msgs []*Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.ID)
		out = append(out, messageIDs(m.Thread)...)
	}
	return out
}

func (s *Store) clearChat(v *Viewer, chatID string) {
	c := v.chat(chatID)
	if c == nil {
		return
	}
	v.forgetMessages(c.Messages)
	c.Messages = nil
	c.NumberOfMessagesPerChat = 0
	s.notify(ChangeMessages, "", chatID)
}

func (s *Store) handleChatEvent(ev *model.ChatEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil {
		return
	}
	id := ev.ChatID
	if ev.Chat != nil {
		id = ev.Chat.ID
	}
	switch ev.ActionType {
	case model.ActionAdded, model.ActionEdited:
		if ev.Chat != nil {
			s.placeChat(v, ev.Chat)
		}
	case model.ActionDeleted:
		s.dropChat(v, id)
	case model.ActionCleared:
		s.clearChat(v, id)
	}
}
