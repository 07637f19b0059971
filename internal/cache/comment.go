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

type Comment struct {
	ID            string          `json:"id"`
	DiscussionID  string          `json:"discussionId"`
	CreatedUserID string          `json:"createdUserId"`
	Content       string          `json:"content"`
	HTMLContent   string          `json:"htmlContent"`
	IsEdited      bool            `json:"isEdited"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`
	Files         []model.FileDTO `json:"files"`
}

func commentKey(c *Comment) string { return c.ID }

func newComment(dto *model.CommentDTO, discussionID string, render renderFunc) *Comment {
	c := &Comment{
		ID:            dto.ID,
		DiscussionID:  dto.DiscussionID,
		CreatedUserID: dto.CreatedUserID,
		CreatedAt:     dto.CreatedAt,
	}
	if c.DiscussionID == "" {
		c.DiscussionID = discussionID
	}
	c.applyPatch(dto, render)
	return c
}

// applyPatch переписывает изменяемые поля; отсутствующие в dto поля не трогает.
func (c *Comment) applyPatch(dto *model.CommentDTO, render renderFunc) {
	if dto.Content != nil {
		c.Content = *dto.Content
		if dto.HTMLContent == nil && render != nil {
			c.HTMLContent = render(c.Content)
		}
	}
	if dto.HTMLContent != nil {
		c.HTMLContent = *dto.HTMLContent
	}
	if dto.IsEdited != nil {
		c.IsEdited = *dto.IsEdited
	}
	if dto.LastUpdatedAt != nil {
		c.LastUpdatedAt = *dto.LastUpdatedAt
	}
	if dto.Files != nil {
		c.Files = slices.Clone(dto.Files)
	}
}

// LoadComments загружает комментарии обсуждения и целиком заменяет ими текущие.
// Повторный вызов во время загрузки ничего не делает.
func (s *Store) LoadComments(ctx context.Context, discussionID string) error {
	if s.opts.ServerRendering {
		return nil
	}
	key := "comments/" + discussionID
	started := false
	err := s.update(func(v *Viewer) error {
		if v.discussion(discussionID) == nil {
			return ErrNotFound
		}
		started = s.guard(key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.LoadComments %s: %w", discussionID, err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.CommentDTO, *model.CommentDTO]
	if err := s.call(ctx, "cache.LoadComments", pathComments(discussionID), remote.Request{Method: http.MethodGet}, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		d := v.discussion(discussionID)
		if d == nil {
			return nil
		}
		d.Comments = nil
		for i := range dtos {
			d.insertComment(newComment(&dtos[i], discussionID, s.renderHTML))
		}
		d.CommentsLoaded = true
		s.notify(ChangeComments, "", discussionID)
		return nil
	})
}

// AddOrEditComment создаёт комментарий (commentID == "") или редактирует существующий.
// files == nil — приложить подготовленные в staging файлы. Возвращает id комментария.
func (s *Store) AddOrEditComment(ctx context.Context, discussionID, content, commentID string, files []model.FileDTO) (string, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		if v.discussion(discussionID) == nil {
			return ErrNotFound
		}
		team = v.CurrentTeamID
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddOrEditComment %s: %w", discussionID, err)
	}
	files, staged := s.withStaged(ctx, files, team, discussionID, commentID)
	body := map[string]any{"content": content, "files": files}

	var dto model.CommentDTO
	if commentID != "" {
		req := remote.Request{Method: http.MethodPatch, Body: body}
		if err := s.call(ctx, "cache.EditComment", pathComment(discussionID, commentID), req, &dto); err != nil {
			return "", err
		}
		err := s.update(func(v *Viewer) error {
			d := v.discussion(discussionID)
			// зрителя могли исключить, пока шёл запрос
			if d == nil || !memberOf(d.MemberIDs, v.ID) {
				return nil
			}
			if c := d.comment(commentID); c != nil {
				c.applyPatch(&dto, s.renderHTML)
				s.notify(ChangeComment, c.ID, d.ID)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("cache.EditComment: %w", err)
		}
	} else {
		req := remote.Request{Method: http.MethodPost, Body: body}
		if err := s.call(ctx, "cache.AddComment", pathComments(discussionID), req, &dto); err != nil {
			return "", err
		}
		err := s.update(func(v *Viewer) error {
			if d := v.discussion(discussionID); d != nil && d.insertComment(newComment(&dto, discussionID, s.renderHTML)) {
				s.notify(ChangeComment, dto.ID, d.ID)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("cache.AddComment: %w", err)
		}
	}
	s.clearStaged(ctx, team, discussionID, commentID, staged)
	return dto.ID, nil
}

func (s *Store) DeleteComment(ctx context.Context, discussionID, commentID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.DeleteComment", pathComment(discussionID, commentID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if d := v.discussion(discussionID); d != nil && d.removeComment(commentID) {
			s.notify(ChangeCommentRemoved, commentID, discussionID)
		}
		if v.UnreadCommentIDs.remove(commentID) {
			s.notify(ChangeRead, commentID, discussionID)
		}
		return nil
	})
}

// MarkCommentsRead отмечает комментарии прочитанными.
func (s *Store) MarkCommentsRead(ctx context.Context, commentIDs []string) error {
	if len(commentIDs) == 0 {
		return nil
	}
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"commentIds": commentIDs}}
	if err := s.call(ctx, "cache.MarkCommentsRead", pathReadComments, req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		for _, id := range commentIDs {
			if v.UnreadCommentIDs.remove(id) {
				s.notify(ChangeRead, id, "")
			}
		}
		return nil
	})
}

// handleCommentEvent — обработчик комнаты обсуждения. Новые комментарии сюда не
// попадают: они приходят через unreadCommentEvent.
func (s *Store) handleCommentEvent(discussionID string) func(*model.CommentEvent) {
	return func(ev *model.CommentEvent) {
		if ev.DiscussionID != "" && ev.DiscussionID != discussionID {
			return
		}
		s.lock()
		defer s.unlock()
		v := s.viewer
		if v == nil {
			return
		}
		d := v.activeDiscussion(discussionID)
		if d == nil {
			return
		}
		id := ev.CommentID
		if ev.Comment != nil {
			id = ev.Comment.ID
		}
		switch ev.ActionType {
		case model.ActionAdded:
			// вставляет handleUnreadComment, иначе комментарий задвоится
		case model.ActionEdited:
			if c := d.comment(id); c != nil && ev.Comment != nil {
				c.applyPatch(ev.Comment, s.renderHTML)
				s.notify(ChangeComment, id, d.ID)
			}
		case model.ActionDeleted:
			if d.removeComment(id) {
				s.notify(ChangeCommentRemoved, id, d.ID)
			}
			if v.UnreadCommentIDs.remove(id) {
				s.notify(ChangeRead, id, d.ID)
			}
		case model.ActionAddedFileInsideComment:
			c := d.comment(id)
			if c == nil {
				return
			}
			if files, ok := addFile(c.Files, model.FileDTO{FileName: ev.FileName, FileURL: ev.FileURL, AddedAt: ev.AddedAt}); ok {
				c.Files = files
				s.notify(ChangeComment, id, d.ID)
			}
		case model.ActionDeletedFileInsideComment:
			c := d.comment(id)
			if c == nil {
				return
			}
			if files, ok := removeFile(c.Files, ev.FileURL, ev.FileName); ok {
				c.Files = files
				s.notify(ChangeComment, id, d.ID)
			}
		}
	}
}
