package cache

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

type Message struct {
	ID              string `json:"id"`
	ChatID          string `json:"chatId"`
	CreatedUserID   string `json:"createdUserId"`
	ParentMessageID string `json:"parentMessageId"`
	Content         string `json:"content"`
	HTMLContent     string `json:"htmlContent"`
	IsEdited        bool   `json:"isEdited"`
	// CountOfThreadMessages — число ответов; у ответов всегда 0.
	CountOfThreadMessages int             `json:"countOfThreadMessages"`
	CreatedAt             time.Time       `json:"createdAt"`
	LastUpdatedAt         time.Time       `json:"lastUpdatedAt"`
	Files                 []model.FileDTO `json:"files"`
	// Thread — ответы (один уровень вложенности); у ответов всегда пуст.
	Thread       []*Message `json:"thread"`
	ThreadLoaded bool       `json:"threadLoaded"`
}

func messageKey(m *Message) string { return m.ID }

func newMessage(dto *model.MessageDTO, chatID, parentID string, render renderFunc) *Message {
	m := &Message{
		ID:              dto.ID,
		ChatID:          dto.ChatID,
		CreatedUserID:   dto.CreatedUserID,
		ParentMessageID: dto.ParentMessageID,
		CreatedAt:       dto.CreatedAt,
	}
	if m.ChatID == "" {
		m.ChatID = chatID
	}
	if m.ParentMessageID == "" {
		m.ParentMessageID = parentID
	}
	m.applyPatch(dto, render)
	return m
}

func (m *Message) applyPatch(dto *model.MessageDTO, render renderFunc) {
	if dto.Content != nil {
		m.Content = *dto.Content
		if dto.HTMLContent == nil && render != nil {
			m.HTMLContent = render(m.Content)
		}
	}
	if dto.HTMLContent != nil {
		m.HTMLContent = *dto.HTMLContent
	}
	if dto.IsEdited != nil {
		m.IsEdited = *dto.IsEdited
	}
	if dto.LastUpdatedAt != nil {
		m.LastUpdatedAt = *dto.LastUpdatedAt
	}
	if dto.Files != nil {
		m.Files = slices.Clone(dto.Files)
	}
	// после загрузки треда счётчик ведётся локально
	if dto.CountOfThreadMessages != nil && m.ParentMessageID == "" && !m.ThreadLoaded {
		m.CountOfThreadMessages = *dto.CountOfThreadMessages
	}
}

func (m *Message) reply(id string) *Message {
	if i := indexByID(m.Thread, id, messageKey); i >= 0 {
		return m.Thread[i]
	}
	return nil
}

// LoadMessages загружает страницу истории. Первая страница заменяет сообщения чата,
// следующие (более старые) вставляются перед уже загруженными.
func (s *Store) LoadMessages(ctx context.Context, chatID string, batchNumber int) error {
	if batchNumber < 1 {
		batchNumber = 1
	}
	key := "messages/" + chatID
	started := false
	if err := s.update(func(v *Viewer) error {
		if v.chat(chatID) == nil {
			return ErrNotFound
		}
		started = s.guard(key)
		return nil
	}); err != nil {
		return fmt.Errorf("cache.LoadMessages %s: %w", chatID, err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.MessageDTO, *model.MessageDTO]
	req := remote.Request{Method: http.MethodGet, Query: map[string]string{"batchNumber": strconv.Itoa(batchNumber)}}
	if err := s.call(ctx, "cache.LoadMessages", pathMessages(chatID), req, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		c := v.chat(chatID)
		if c == nil {
			return nil
		}
		var page []*Message
		for i := range dtos {
			dto := &dtos[i]
			if dto.ParentMessageID != "" || indexByID(page, dto.ID, messageKey) >= 0 {
				continue
			}
			if batchNumber > 1 && c.message(dto.ID) != nil {
				continue
			}
			page = append(page, newMessage(dto, chatID, "", s.renderHTML))
		}
		if batchNumber == 1 {
			c.Messages = page
		} else {
			c.Messages = append(page, c.Messages...)
		}
		if c.NumberOfMessagesPerChat < len(c.Messages) {
			c.NumberOfMessagesPerChat = len(c.Messages)
		}
		s.notify(ChangeMessages, "", chatID)
		return nil
	})
}

// AddOrEditMessage создаёт сообщение (messageID == "") или редактирует существующее.
// parentMessageID != "" — ответ в треде. files == nil — приложить подготовленные файлы.
// Возвращает id сообщения.
func (s *Store) AddOrEditMessage(ctx context.Context, chatID, content, messageID, parentMessageID string, files []model.FileDTO) (string, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		if v.chat(chatID) == nil {
			return ErrNotFound
		}
		team = v.CurrentTeamID
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddOrEditMessage %s: %w", chatID, err)
	}
	stageParent, stageChild := chatID, messageID
	if messageID == "" && parentMessageID != "" {
		stageParent = parentMessageID
	}
	files, staged := s.withStaged(ctx, files, team, stageParent, stageChild)
	body := map[string]any{"content": content, "files": files}
	if parentMessageID != "" {
		body["parentMessageId"] = parentMessageID
	}

	var dto model.MessageDTO
	if messageID != "" {
		req := remote.Request{Method: http.MethodPatch, Body: body}
		if err := s.call(ctx, "cache.EditMessage", pathMessage(chatID, messageID), req, &dto); err != nil {
			return "", err
		}
		err := s.update(func(v *Viewer) error {
			c := v.chat(chatID)
			if c == nil || !memberOf(c.ParticipantIDs, v.ID) {
				return nil
			}
			if m := c.find(messageID, parentMessageID); m != nil {
				m.applyPatch(&dto, s.renderHTML)
				s.notify(ChangeMessage, m.ID, chatID)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("cache.EditMessage: %w", err)
		}
	} else {
		req := remote.Request{Method: http.MethodPost, Body: body}
		if err := s.call(ctx, "cache.AddMessage", pathMessages(chatID), req, &dto); err != nil {
			return "", err
		}
		err := s.update(func(v *Viewer) error {
			c := v.chat(chatID)
			if c == nil {
				return nil
			}
			if c.insertMessage(newMessage(&dto, chatID, parentMessageID, s.renderHTML)) {
				s.notify(ChangeMessage, dto.ID, chatID)
			}
			// «не прочитано получателем», пока не придёт событие о просмотре
			if len(c.ParticipantIDs) > 1 && v.UnreadBySomeoneMessageIDs.add(dto.ID) {
				s.notify(ChangeUnreadBySomeone, dto.ID, chatID)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("cache.AddMessage: %w", err)
		}
	}
	s.clearStaged(ctx, team, stageParent, stageChild, staged)
	return dto.ID, nil
}

func (s *Store) DeleteMessage(ctx context.Context, chatID, messageID, parentMessageID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if parentMessageID != "" {
		req.Query = map[string]string{"parentMessageId": parentMessageID}
	}
	if err := s.call(ctx, "cache.DeleteMessage", pathMessage(chatID, messageID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.deleteMessage(v, chatID, messageID, parentMessageID)
		return nil
	})
}

// deleteMessage убирает сообщение (вместе с его тредом) и его id из непрочитанного. Под блокировкой.
func (s *Store) deleteMessage(v *Viewer, chatID, messageID, parentID string) {
	c := v.chat(chatID)
	if c == nil {
		return
	}
	if m := c.removeMessage(messageID, parentID); m != nil {
		s.notify(ChangeMessageRemoved, messageID, chatID)
		v.forgetMessages(m.Thread)
	}
	for _, id := range v.removeUnreadByUser(messageID, parentID) {
		s.notify(ChangeRead, id, chatID)
	}
	if v.UnreadBySomeoneMessageIDs.remove(messageID) {
		s.notify(ChangeRead, messageID, chatID)
	}
}

// LoadThreadMessages загружает ответы на сообщение и целиком заменяет ими тред.
func (s *Store) LoadThreadMessages(ctx context.Context, chatID, messageID, teamID string) error {
	if s.opts.ServerRendering {
		return nil
	}
	key := "thread/" + chatID + "/" + messageID
	started := false
	if err := s.update(func(v *Viewer) error {
		c := v.chat(chatID)
		if c == nil || c.message(messageID) == nil {
			return ErrNotFound
		}
		if teamID == "" {
			teamID = v.CurrentTeamID
		}
		started = s.guard(key)
		return nil
	}); err != nil {
		return fmt.Errorf("cache.LoadThreadMessages %s: %w", messageID, err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.MessageDTO, *model.MessageDTO]
	req := remote.Request{Method: http.MethodGet, Query: map[string]string{"teamId": teamID}}
	if err := s.call(ctx, "cache.LoadThreadMessages", pathThread(chatID, messageID), req, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		c := v.chat(chatID)
		if c == nil {
			return nil
		}
		p := c.message(messageID)
		if p == nil {
			return nil
		}
		p.Thread = nil
		for i := range dtos {
			r := newMessage(&dtos[i], chatID, messageID, s.renderHTML)
			r.ParentMessageID = messageID
			if p.reply(r.ID) == nil {
				p.Thread = append(p.Thread, r)
			}
		}
		p.CountOfThreadMessages = len(p.Thread)
		p.ThreadLoaded = true
		s.notify(ChangeMessages, messageID, chatID)
		return nil
	})
}

// handleMessageEvent — обработчик комнаты чата.
func (s *Store) handleMessageEvent(chatID string) func(*model.MessageEvent) {
	return func(ev *model.MessageEvent) {
		if ev.ChatID != "" && ev.ChatID != chatID {
			return
		}
		s.lock()
		defer s.unlock()
		v := s.viewer
		if v == nil {
			return
		}
		c := v.chat(chatID)
		if c == nil {
			return
		}
		id, parentID := ev.MessageID, ev.ParentMessageID
		if ev.Message != nil {
			id = ev.Message.ID
			if parentID == "" {
				parentID = ev.Message.ParentMessageID
			}
		}
		switch ev.ActionType {
		case model.ActionAdded:
			if ev.Message != nil && c.insertMessage(newMessage(ev.Message, chatID, parentID, s.renderHTML)) {
				s.notify(ChangeMessage, id, chatID)
			}
		case model.ActionEdited:
			if m := c.find(id, parentID); m != nil && ev.Message != nil {
				m.applyPatch(ev.Message, s.renderHTML)
				s.notify(ChangeMessage, id, chatID)
			}
		case model.ActionDeleted:
			s.deleteMessage(v, chatID, id, parentID)
		case model.ActionAddedFileInsideMessage:
			m := c.find(id, parentID)
			if m == nil {
				return
			}
			if files, ok := addFile(m.Files, model.FileDTO{FileName: ev.FileName, FileURL: ev.FileURL, AddedAt: ev.AddedAt}); ok {
				m.Files = files
				s.notify(ChangeMessage, id, chatID)
			}
		case model.ActionDeletedFileInsideMessage:
			m := c.find(id, parentID)
			if m == nil {
				return
			}
			if files, ok := removeFile(m.Files, ev.FileURL, ev.FileName); ok {
				m.Files = files
				s.notify(ChangeMessage, id, chatID)
			}
		}
	}
}
