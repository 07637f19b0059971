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
	"github.com/teamsync/internal/storage"
)

type Discussion struct {
	ID             string     `json:"id"`
	TeamID         string     `json:"teamId"`
	Name           string     `json:"name"`
	LeaderID       string     `json:"leaderId"`
	MemberIDs      []string   `json:"memberIds"`
	IsArchived     bool       `json:"isArchived"`
	FirstCommentID string     `json:"firstCommentId"`
	LastUpdatedAt  time.Time  `json:"lastUpdatedAt"`
	Comments       []*Comment `json:"comments"`
	// CommentsLoaded — комментарии загружены целиком (LoadComments).
	CommentsLoaded bool `json:"commentsLoaded"`
}

func discussionKey(d *Discussion) string { return d.ID }

func newDiscussion(dto *model.DiscussionDTO, render renderFunc) *Discussion {
	d := &Discussion{ID: dto.ID, TeamID: dto.TeamID, LeaderID: dto.CreatedUserID}
	d.applyPatch(dto, render)
	return d
}

func (d *Discussion) applyPatch(dto *model.DiscussionDTO, render renderFunc) {
	if dto.Name != nil {
		d.Name = *dto.Name
	}
	if dto.MemberIDs != nil {
		d.MemberIDs = slices.Clone(dto.MemberIDs)
	}
	if dto.IsArchived != nil {
		d.IsArchived = *dto.IsArchived
	}
	if dto.FirstCommentID != "" {
		d.FirstCommentID = dto.FirstCommentID
	}
	if dto.LastUpdatedAt != nil {
		d.LastUpdatedAt = *dto.LastUpdatedAt
	}
	for i := range dto.Comments {
		d.insertComment(newComment(&dto.Comments[i], d.ID, render))
	}
}

func (d *Discussion) comment(id string) *Comment {
	if i := indexByID(d.Comments, id, commentKey); i >= 0 {
		return d.Comments[i]
	}
	return nil
}

// insertComment добавляет комментарий в конец, если его ещё нет.
func (d *Discussion) insertComment(c *Comment) bool {
	if c.ID == "" || d.comment(c.ID) != nil {
		return false
	}
	d.Comments = append(d.Comments, c)
	if c.CreatedAt.After(d.LastUpdatedAt) {
		d.LastUpdatedAt = c.CreatedAt
	}
	return true
}

func (d *Discussion) removeComment(id string) bool {
	n := len(d.Comments)
	d.Comments = slices.DeleteFunc(d.Comments, func(c *Comment) bool { return c.ID == id })
	return len(d.Comments) != n
}

// LoadDiscussions загружает активные или архивные обсуждения текущей команды.
// Уже загруженные комментарии сохраняются у обсуждений, оставшихся в списке.
func (s *Store) LoadDiscussions(ctx context.Context, archived bool) error {
	key := "discussions/" + strconv.FormatBool(archived)
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
		return fmt.Errorf("cache.LoadDiscussions: %w", err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.DiscussionDTO, *model.DiscussionDTO]
	req := remote.Request{Method: http.MethodGet, Query: map[string]string{"isArchived": strconv.FormatBool(archived)}}
	if err := s.call(ctx, "cache.LoadDiscussions", pathTeamDiscussions(team), req, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if v.CurrentTeamID != team {
			return nil
		}
		var list []*Discussion
		for i := range dtos {
			dto := &dtos[i]
			if dto.IsArchived == nil {
				dto.IsArchived = &archived
			}
			if !memberOf(dto.MemberIDs, v.ID) {
				continue
			}
			d := v.detachDiscussion(dto.ID)
			if d == nil {
				d = newDiscussion(dto, s.renderHTML)
			} else {
				d.applyPatch(dto, s.renderHTML)
			}
			if indexByID(list, d.ID, discussionKey) < 0 {
				list = append(list, d)
			}
		}
		if archived {
			v.ArchivedDiscussions = list
		} else {
			v.ActiveDiscussions = list
		}
		s.rememberDiscussions(archived, dtos)
		s.notify(ChangeDiscussion, "", team)
		return nil
	})
}

// rememberDiscussions обновляет последние полные данные, из которых кеш
// пересобирается после переподключения.
func (s *Store) rememberDiscussions(archived bool, dtos []model.DiscussionDTO) {
	if s.initial == nil {
		return
	}
	kept := slices.DeleteFunc(slices.Clone(s.initial.Discussions), func(d model.DiscussionDTO) bool {
		return (d.IsArchived != nil && *d.IsArchived) == archived
	})
	s.initial.Discussions = append(kept, dtos...)
}

// AddDiscussion создаёт обсуждение с первым комментарием и возвращает его id.
func (s *Store) AddDiscussion(ctx context.Context, name string, memberIDs []string, firstComment string) (string, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		if v.CurrentTeamID == "" {
			return ErrNotFound
		}
		team = v.CurrentTeamID
		if !contains(memberIDs, v.ID) {
			memberIDs = append(slices.Clone(memberIDs), v.ID)
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddDiscussion: %w", err)
	}
	files, staged := s.withStaged(ctx, nil, team, storage.NewPlaceholder, storage.NewPlaceholder)
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{
		"name":      name,
		"memberIds": memberIDs,
		"content":   firstComment,
		"files":     files,
	}}
	var dto model.DiscussionDTO
	if err := s.call(ctx, "cache.AddDiscussion", pathTeamDiscussions(team), req, &dto); err != nil {
		return "", err
	}
	if err := s.update(func(v *Viewer) error {
		s.placeDiscussion(v, &dto)
		return nil
	}); err != nil {
		return "", fmt.Errorf("cache.AddDiscussion: %w", err)
	}
	s.clearStaged(ctx, team, storage.NewPlaceholder, storage.NewPlaceholder, staged)
	return dto.ID, nil
}

// EditDiscussion меняет название и состав. Если зритель исключил себя,
// обсуждение уходит из кеша.
func (s *Store) EditDiscussion(ctx context.Context, discussionID, name string, memberIDs []string) error {
	req := remote.Request{Method: http.MethodPatch, Body: map[string]any{"name": name, "memberIds": memberIDs}}
	var dto model.DiscussionDTO
	if err := s.call(ctx, "cache.EditDiscussion", pathDiscussion(discussionID), req, &dto); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.placeDiscussion(v, &dto)
		return nil
	})
}

// ArchiveDiscussion переносит обсуждение в архив (archived == true) или обратно.
func (s *Store) ArchiveDiscussion(ctx context.Context, discussionID string, archived bool) error {
	req := remote.Request{Method: http.MethodPatch, Body: map[string]any{"isArchived": archived}}
	if err := s.call(ctx, "cache.ArchiveDiscussion", pathDiscussionArchive(discussionID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if v.discussion(discussionID) == nil {
			return nil
		}
		s.placeDiscussion(v, &model.DiscussionDTO{ID: discussionID, IsArchived: &archived})
		return nil
	})
}

func (s *Store) DeleteDiscussion(ctx context.Context, discussionID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.DeleteDiscussion", pathDiscussion(discussionID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.dropDiscussion(v, discussionID)
		v.PinnedDiscussionIDs = without(v.PinnedDiscussionIDs, discussionID)
		return nil
	})
}

func (s *Store) PinDiscussion(ctx context.Context, discussionID string) error {
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"discussionId": discussionID}}
	if err := s.call(ctx, "cache.PinDiscussion", pathPinnedDiscussions, req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if !v.isPinned(discussionID) {
			v.PinnedDiscussionIDs = append(v.PinnedDiscussionIDs, discussionID)
			s.notify(ChangePinned, discussionID, "")
		}
		return nil
	})
}

func (s *Store) UnpinDiscussion(ctx context.Context, discussionID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.UnpinDiscussion", pathPinnedDiscussion(discussionID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if v.isPinned(discussionID) {
			v.PinnedDiscussionIDs = without(v.PinnedDiscussionIDs, discussionID)
			s.notify(ChangePinned, discussionID, "")
		}
		return nil
	})
}

// OpenDiscussion входит в комнату обсуждения и подписывается на его комментарии.
func (s *Store) OpenDiscussion(discussionID string) error {
	return s.update(func(v *Viewer) error {
		if v.discussion(discussionID) == nil {
			return fmt.Errorf("cache.OpenDiscussion %s: %w", discussionID, ErrNotFound)
		}
		if _, ok := s.discussionRooms[discussionID]; ok {
			return nil
		}
		s.emit(model.EventJoinDiscussionRoom, model.RoomPayload{DiscussionID: discussionID})
		s.discussionRooms[discussionID] = on(s, model.EventComment, s.handleCommentEvent(discussionID))
		return nil
	})
}

func (s *Store) CloseDiscussion(discussionID string) {
	s.lock()
	defer s.unlock()
	s.closeDiscussionRoom(discussionID)
}

func (s *Store) closeDiscussionRoom(discussionID string) {
	off, ok := s.discussionRooms[discussionID]
	if !ok {
		return
	}
	s.emit(model.EventLeaveDiscussionRoom, model.RoomPayload{DiscussionID: discussionID})
	off()
	delete(s.discussionRooms, discussionID)
}

// placeDiscussion применяет данные сервера и сообщает подписчикам, осталось ли
// обсуждение в кеше. Под блокировкой.
func (s *Store) placeDiscussion(v *Viewer, dto *model.DiscussionDTO) {
	existing := v.discussion(dto.ID)
	comments := commentIDs(existing)
	if v.placeDiscussion(dto, s.renderHTML) {
		if existing == nil {
			s.rememberDiscussion(dto)
		}
		s.notify(ChangeDiscussion, dto.ID, "")
		return
	}
	if existing != nil {
		s.forgetDiscussion(dto.ID, comments)
		s.closeDiscussionRoom(dto.ID)
		s.notify(ChangeDiscussionRemoved, dto.ID, "")
	}
}

func (s *Store) dropDiscussion(v *Viewer, discussionID string) {
	comments := commentIDs(v.discussion(discussionID))
	if v.removeDiscussion(discussionID) {
		s.forgetDiscussion(discussionID, comments)
		s.closeDiscussionRoom(discussionID)
		s.notify(ChangeDiscussionRemoved, discussionID, "")
	}
}

func commentIDs(d *Discussion) []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Comments))
	for _, c := range d.Comments {
		out = append(out, c.ID)
	}
	return out
}

func (s *Store) handleDiscussionEvent(ev *model.DiscussionEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil {
		return
	}
	switch ev.ActionType {
	case model.ActionAdded, model.ActionEdited:
		if ev.Discussion != nil {
			s.placeDiscussion(v, ev.Discussion)
		}
	case model.ActionDeleted:
		id := ev.DiscussionID
		if ev.Discussion != nil {
			id = ev.Discussion.ID
		}
		s.dropDiscussion(v, id)
	}
}
