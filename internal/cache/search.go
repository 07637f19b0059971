package cache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

// SearchResult — найденный комментарий или сообщение с подсвеченной выдержкой.
type SearchResult struct {
	// ParentID — обсуждение (для комментария) или чат (для сообщения).
	ParentID       string    `json:"parentId"`
	ParentName     string    `json:"parentName,omitempty"`
	ItemID         string    `json:"itemId"`
	ThreadParentID string    `json:"threadParentId,omitempty"`
	Excerpt        string    `json:"excerpt"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (s *Store) excerpt(query string, content, html *string) string {
	text := ""
	switch {
	case html != nil && *html != "":
		text = *html
	case content != nil:
		text = *content
	}
	if s.opts.Highlighter == nil {
		return text
	}
	return s.opts.Highlighter.Highlight(query, text)
}

// SearchDiscussions ищет по комментариям обсуждений текущей команды.
func (s *Store) SearchDiscussions(ctx context.Context, query string) ([]SearchResult, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		team = v.CurrentTeamID
		return nil
	}); err != nil {
		return nil, fmt.Errorf("cache.SearchDiscussions: %w", err)
	}
	var dtos dtoList[model.CommentDTO, *model.CommentDTO]
	req := remote.Request{Method: http.MethodGet, Query: map[string]string{"query": query}}
	if err := s.call(ctx, "cache.SearchDiscussions", pathSearchComments(team), req, &dtos); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(dtos))
	err := s.Read(func(v *Viewer) {
		for i := range dtos {
			dto := &dtos[i]
			r := SearchResult{
				ParentID:  dto.DiscussionID,
				ItemID:    dto.ID,
				Excerpt:   s.excerpt(query, dto.Content, dto.HTMLContent),
				CreatedAt: dto.CreatedAt,
			}
			if d := v.discussion(dto.DiscussionID); d != nil {
				r.ParentName = d.Name
			}
			out = append(out, r)
		}
	})
	return out, err
}

// SearchMessages ищет по сообщениям чатов текущей команды.
func (s *Store) SearchMessages(ctx context.Context, query string) ([]SearchResult, error) {
	var team string
	if err := s.update(func(v *Viewer) error {
		team = v.CurrentTeamID
		return nil
	}); err != nil {
		return nil, fmt.Errorf("cache.SearchMessages: %w", err)
	}
	var dtos dtoList[model.MessageDTO, *model.MessageDTO]
	req := remote.Request{Method: http.MethodGet, Query: map[string]string{"query": query}}
	if err := s.call(ctx, "cache.SearchMessages", pathSearchMessages(team), req, &dtos); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(dtos))
	for i := range dtos {
		dto := &dtos[i]
		out = append(out, SearchResult{
			ParentID:       dto.ChatID,
			ItemID:         dto.ID,
			ThreadParentID: dto.ParentMessageID,
			Excerpt:        s.excerpt(query, dto.Content, dto.HTMLContent),
			CreatedAt:      dto.CreatedAt,
		})
	}
	return out, nil
}
