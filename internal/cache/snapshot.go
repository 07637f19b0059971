package cache

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Снимки — глубокие копии; их можно читать без блокировки.

func (s IDSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.IDs()) }

func (t *Team) clone() *Team {
	out := *t
	out.MemberIDs = slices.Clone(t.MemberIDs)
	if t.Members != nil {
		out.Members = make(map[string]*Member, len(t.Members))
		for id, m := range t.Members {
			mm := *m
			out.Members[id] = &mm
		}
	}
	return &out
}

func (c *Comment) clone() *Comment {
	out := *c
	out.Files = slices.Clone(c.Files)
	return &out
}

func (d *Discussion) clone() *Discussion {
	out := *d
	out.MemberIDs = slices.Clone(d.MemberIDs)
	out.Comments = cloneAll(d.Comments, (*Comment).clone)
	return &out
}

func (m *Message) clone() *Message {
	out := *m
	out.Files = slices.Clone(m.Files)
	out.Thread = cloneAll(m.Thread, (*Message).clone)
	return &out
}

func (c *Chat) clone() *Chat {
	out := *c
	out.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	out.Messages = cloneAll(c.Messages, (*Message).clone)
	return &out
}

func (v *Viewer) clone() *Viewer {
	out := *v
	out.Teams = cloneAll(v.Teams, (*Team).clone)
	out.ActiveDiscussions = cloneAll(v.ActiveDiscussions, (*Discussion).clone)
	out.ArchivedDiscussions = cloneAll(v.ArchivedDiscussions, (*Discussion).clone)
	out.Chats = cloneAll(v.Chats, (*Chat).clone)
	out.PinnedDiscussionIDs = slices.Clone(v.PinnedDiscussionIDs)
	out.UnreadCommentIDs = v.UnreadCommentIDs.clone()
	out.UnreadByUserMessageIDs = v.UnreadByUserMessageIDs.clone()
	out.UnreadBySomeoneMessageIDs = v.UnreadBySomeoneMessageIDs.clone()
	out.unreadReplyParents = maps.Clone(v.unreadReplyParents)
	return &out
}

func cloneAll[T any](items []*T, clone func(*T) *T) []*T {
	if items == nil {
		return nil
	}
	out := make([]*T, len(items))
	for i, it := range items {
		out[i] = clone(it)
	}
	return out
}

// IsCommentUnread — непрочитанность определяется только набором зрителя.
func (v *Viewer) IsCommentUnread(id string) bool { return v.UnreadCommentIDs.Has(id) }

func (v *Viewer) IsMessageUnreadByViewer(id string) bool { return v.UnreadByUserMessageIDs.Has(id) }

// IsMessageUnreadByRecipient — сообщение зрителя, которое ещё никто не прочитал.
func (v *Viewer) IsMessageUnreadByRecipient(id string) bool {
	return v.UnreadBySomeoneMessageIDs.Has(id)
}

// Read выполняет fn под блокировкой. fn не должна менять кеш и сохранять ссылки.
func (s *Store) Read(fn func(v *Viewer)) error {
	s.lock()
	defer s.unlock()
	if s.viewer == nil {
		return ErrNotLoaded
	}
	fn(s.viewer)
	return nil
}

func (s *Store) Viewer() (*Viewer, error) {
	var out *Viewer
	err := s.Read(func(v *Viewer) { out = v.clone() })
	return out, err
}

func (s *Store) Team(teamID string) (*Team, error) {
	var out *Team
	err := s.Read(func(v *Viewer) {
		if t := v.team(teamID); t != nil {
			out = t.clone()
		}
	})
	if err == nil && out == nil {
		err = fmt.Errorf("cache.Team %s: %w", teamID, ErrNotFound)
	}
	return out, err
}

// Members — состав команды по имени; nil, если состав ещё не загружен.
func (s *Store) Members(teamID string) ([]*Member, error) {
	t, err := s.Team(teamID)
	if err != nil || t.Members == nil {
		return nil, err
	}
	out := make([]*Member, 0, len(t.Members))
	for _, m := range t.Members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Member) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ActiveDiscussions — упорядоченные активные обсуждения.
func (s *Store) ActiveDiscussions() ([]*Discussion, error) {
	var out []*Discussion
	err := s.Read(func(v *Viewer) {
		out = cloneAll(OrderActiveDiscussions(v.ActiveDiscussions, v.PinnedDiscussionIDs), (*Discussion).clone)
	})
	return out, err
}

func (s *Store) ArchivedDiscussions() ([]*Discussion, error) {
	var out []*Discussion
	err := s.Read(func(v *Viewer) {
		out = cloneAll(OrderArchivedDiscussions(v.ArchivedDiscussions), (*Discussion).clone)
	})
	return out, err
}

// OrderedChats — чаты в порядке Options.ChatOrder.
func (s *Store) OrderedChats() ([]*Chat, error) {
	var out []*Chat
	err := s.Read(func(v *Viewer) {
		out = cloneAll(OrderChats(v.Chats, s.opts.ChatOrder), (*Chat).clone)
	})
	return out, err
}

func (s *Store) Comments(discussionID string) ([]*Comment, error) {
	var out []*Comment
	found := false
	err := s.Read(func(v *Viewer) {
		if d := v.discussion(discussionID); d != nil {
			found = true
			out = cloneAll(d.Comments, (*Comment).clone)
		}
	})
	if err == nil && !found {
		err = fmt.Errorf("cache.Comments %s: %w", discussionID, ErrNotFound)
	}
	return out, err
}

// Messages — сообщения верхнего уровня с тредами.
func (s *Store) Messages(chatID string) ([]*Message, error) {
	var out []*Message
	found := false
	err := s.Read(func(v *Viewer) {
		if c := v.chat(chatID); c != nil {
			found = true
			out = cloneAll(c.Messages, (*Message).clone)
		}
	})
	if err == nil && !found {
		err = fmt.Errorf("cache.Messages %s: %w", chatID, ErrNotFound)
	}
	return out, err
}

func (s *Store) ThreadMessages(chatID, messageID string) ([]*Message, error) {
	var out []*Message
	found := false
	err := s.Read(func(v *Viewer) {
		if c := v.chat(chatID); c != nil {
			if m := c.message(messageID); m != nil {
				found = true
				out = cloneAll(m.Thread, (*Message).clone)
			}
		}
	})
	if err == nil && !found {
		err = fmt.Errorf("cache.ThreadMessages %s: %w", messageID, ErrNotFound)
	}
	return out, err
}

// UnreadCounts — размеры наборов непрочитанного и разбивка по загруженным
// обсуждениям и чатам.
type UnreadCounts struct {
	Comments            int            `json:"comments"`
	MessagesByViewer    int            `json:"messagesByViewer"`
	MessagesByRecipient int            `json:"messagesByRecipient"`
	Discussions         map[string]int `json:"discussions"`
	Chats               map[string]int `json:"chats"`
}

func (s *Store) UnreadCounts() (UnreadCounts, error) {
	var out UnreadCounts
	err := s.Read(func(v *Viewer) {
		out = UnreadCounts{
			Comments:            v.UnreadCommentIDs.Len(),
			MessagesByViewer:    v.UnreadByUserMessageIDs.Len(),
			MessagesByRecipient: v.UnreadBySomeoneMessageIDs.Len(),
			Discussions:         make(map[string]int),
			Chats:               make(map[string]int),
		}
		for _, d := range v.ActiveDiscussions {
			n := 0
			for _, c := range d.Comments {
				if v.IsCommentUnread(c.ID) {
					n++
				}
			}
			if n > 0 {
				out.Discussions[d.ID] = n
			}
		}
		for _, c := range v.Chats {
			n := 0
			for _, m := range c.Messages {
				if v.IsMessageUnreadByViewer(m.ID) {
					n++
				}
				for _, r := range m.Thread {
					if v.IsMessageUnreadByViewer(r.ID) {
						n++
					}
				}
			}
			if n > 0 {
				out.Chats[c.ID] = n
			}
		}
	})
	return out, err
}
