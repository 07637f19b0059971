package cache

import (
	"slices"

	"github.com/teamsync/internal/model"
)

type renderFunc func(content string) string

// Viewer — текущий пользователь и всё, что он видит в текущей команде.
type Viewer struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl"`
	ShowDarkTheme bool   `json:"showDarkTheme"`
	DefaultTeamID string `json:"defaultTeamId"`
	CurrentTeamID string `json:"currentTeamId"`

	Teams               []*Team       `json:"teams"`
	ActiveDiscussions   []*Discussion `json:"activeDiscussions"`
	ArchivedDiscussions []*Discussion `json:"archivedDiscussions"`
	Chats               []*Chat       `json:"chats"`

	PinnedDiscussionIDs       []string `json:"pinnedDiscussionIds"`
	UnreadCommentIDs          IDSet    `json:"unreadCommentIds"`
	UnreadByUserMessageIDs    IDSet    `json:"unreadByUserMessageIds"`
	UnreadBySomeoneMessageIDs IDSet    `json:"unreadBySomeoneMessageIds"`

	// непрочитанный ответ в треде -> id родительского сообщения
	unreadReplyParents map[string]string
}

func newViewer(data *model.InitialData, render renderFunc) *Viewer {
	u := data.User
	v := &Viewer{
		ID:                        u.ID,
		Email:                     u.Email,
		DefaultTeamID:             u.DefaultTeamID,
		PinnedDiscussionIDs:       slices.Clone(u.PinnedDiscussionIDs),
		UnreadCommentIDs:          newIDSet(u.UnreadCommentIDs),
		UnreadByUserMessageIDs:    newIDSet(u.UnreadByUserMessageIDs),
		UnreadBySomeoneMessageIDs: newIDSet(u.UnreadBySomeoneMessageIDs),
		unreadReplyParents:        make(map[string]string),
	}
	v.applyPatch(u)
	for i := range data.Teams {
		if v.team(data.Teams[i].ID) == nil {
			v.Teams = append(v.Teams, newTeam(&data.Teams[i]))
		}
	}
	v.CurrentTeamID = data.CurrentTeamID
	if v.CurrentTeamID == "" && v.team(u.DefaultTeamID) != nil {
		v.CurrentTeamID = u.DefaultTeamID
	}
	if v.CurrentTeamID == "" && len(v.Teams) > 0 {
		v.CurrentTeamID = v.Teams[0].ID
	}
	for i := range data.Discussions {
		v.placeDiscussion(&data.Discussions[i], render)
	}
	for i := range data.Chats {
		v.placeChat(&data.Chats[i], render)
	}
	return v
}

func (v *Viewer) applyPatch(u *model.UserDTO) {
	if u.Email != "" {
		v.Email = u.Email
	}
	if u.DisplayName != nil {
		v.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		v.AvatarURL = *u.AvatarURL
	}
	if u.ShowDarkTheme != nil {
		v.ShowDarkTheme = *u.ShowDarkTheme
	}
	if u.DefaultTeamID != "" {
		v.DefaultTeamID = u.DefaultTeamID
	}
}

// asMember — зритель в виде участника команды (для ростера лидера).
func (v *Viewer) asMember() *Member {
	return &Member{ID: v.ID, Email: v.Email, DisplayName: v.DisplayName, AvatarURL: v.AvatarURL, IsOnline: true}
}

func (v *Viewer) team(id string) *Team {
	if i := indexByID(v.Teams, id, teamKey); i >= 0 {
		return v.Teams[i]
	}
	return nil
}

func (v *Viewer) activeDiscussion(id string) *Discussion {
	if i := indexByID(v.ActiveDiscussions, id, discussionKey); i >= 0 {
		return v.ActiveDiscussions[i]
	}
	return nil
}

// discussion ищет и в активных, и в архивных.
func (v *Viewer) discussion(id string) *Discussion {
	if d := v.activeDiscussion(id); d != nil {
		return d
	}
	if i := indexByID(v.ArchivedDiscussions, id, discussionKey); i >= 0 {
		return v.ArchivedDiscussions[i]
	}
	return nil
}

func (v *Viewer) chat(id string) *Chat {
	if i := indexByID(v.Chats, id, chatKey); i >= 0 {
		return v.Chats[i]
	}
	return nil
}

func (v *Viewer) isPinned(discussionID string) bool {
	return contains(v.PinnedDiscussionIDs, discussionID)
}

// placeDiscussion вставляет или обновляет обсуждение по данным сервера и кладёт его
// в активные или архивные. Если зритель больше не участник, обсуждение удаляется,
// а не обновляется. Возвращает true, если обсуждение осталось в кеше.
func (v *Viewer) placeDiscussion(dto *model.DiscussionDTO, render renderFunc) bool {
	existing := v.discussion(dto.ID)
	members := dto.MemberIDs
	if members == nil && existing != nil {
		members = existing.MemberIDs
	}
	if members != nil && !contains(members, v.ID) {
		v.removeDiscussion(dto.ID)
		return false
	}
	if existing == nil {
		if dto.TeamID != "" && dto.TeamID != v.CurrentTeamID {
			return false
		}
		d := newDiscussion(dto, render)
		if d.IsArchived {
			v.ArchivedDiscussions = append(v.ArchivedDiscussions, d)
		} else {
			v.ActiveDiscussions = append(v.ActiveDiscussions, d)
		}
		return true
	}
	wasArchived := existing.IsArchived
	existing.applyPatch(dto, render)
	if wasArchived != existing.IsArchived {
		v.detachDiscussion(existing.ID)
		if existing.IsArchived {
			v.ArchivedDiscussions = append(v.ArchivedDiscussions, existing)
		} else {
			v.ActiveDiscussions = append(v.ActiveDiscussions, existing)
		}
	}
	return true
}

func (v *Viewer) detachDiscussion(id string) *Discussion {
	d := v.discussion(id)
	if d == nil {
		return nil
	}
	match := func(x *Discussion) bool { return x.ID == id }
	v.ActiveDiscussions = slices.DeleteFunc(v.ActiveDiscussions, match)
	v.ArchivedDiscussions = slices.DeleteFunc(v.ArchivedDiscussions, match)
	return d
}

// removeDiscussion убирает обсуждение и id его комментариев из непрочитанного.
func (v *Viewer) removeDiscussion(id string) bool {
	d := v.detachDiscussion(id)
	if d == nil {
		return false
	}
	for _, c := range d.Comments {
		v.UnreadCommentIDs.remove(c.ID)
	}
	return true
}

// placeChat — то же, что placeDiscussion, для чатов (по списку участников).
func (v *Viewer) placeChat(dto *model.ChatDTO, render renderFunc) bool {
	existing := v.chat(dto.ID)
	members := dto.ChatParticipantIDs
	if members == nil && existing != nil {
		members = existing.ParticipantIDs
	}
	if members != nil && !contains(members, v.ID) {
		v.removeChat(dto.ID)
		return false
	}
	if existing == nil {
		if dto.TeamID != "" && dto.TeamID != v.CurrentTeamID {
			return false
		}
		v.Chats = append(v.Chats, newChat(dto, render))
		return true
	}
	existing.applyPatch(dto, render)
	return true
}

// removeChat убирает чат и id его сообщений из наборов непрочитанного.
func (v *Viewer) removeChat(id string) bool {
	c := v.chat(id)
	if c == nil {
		return false
	}
	v.Chats = slices.DeleteFunc(v.Chats, func(x *Chat) bool { return x.ID == id })
	v.forgetMessages(c.Messages)
	return true
}

func (v *Viewer) forgetMessages(msgs []*Message) {
	for _, m := range msgs {
		v.removeUnreadByUser(m.ID, m.ParentMessageID)
		v.UnreadBySomeoneMessageIDs.remove(m.ID)
		v.forgetMessages(m.Thread)
	}
}

// addUnreadByUser добавляет сообщение (и родителя, если это ответ в треде).
func (v *Viewer) addUnreadByUser(messageID, parentID string) bool {
	added := v.UnreadByUserMessageIDs.add(messageID)
	if parentID != "" {
		v.unreadReplyParents[messageID] = parentID
		v.UnreadByUserMessageIDs.add(parentID)
	}
	return added
}

// removeUnreadByUser убирает сообщение; родитель остаётся, пока под ним есть
// другие непрочитанные ответы. parentID == "" — родитель ищется по известным
// ответам и загруженным тредам. Возвращает удалённые id.
func (v *Viewer) removeUnreadByUser(messageID, parentID string) []string {
	var removed []string
	if v.UnreadByUserMessageIDs.remove(messageID) {
		removed = append(removed, messageID)
	}
	if parentID == "" {
		parentID = v.unreadReplyParents[messageID]
	}
	if parentID == "" {
		parentID = v.threadParentOf(messageID)
	}
	delete(v.unreadReplyParents, messageID)
	if parentID == "" || v.hasUnreadReplies(parentID) {
		return removed
	}
	if v.UnreadByUserMessageIDs.remove(parentID) {
		removed = append(removed, parentID)
	}
	return removed
}

// threadParentOf ищет ответ в загруженных тредах.
func (v *Viewer) threadParentOf(messageID string) string {
	for _, c := range v.Chats {
		for _, m := range c.Messages {
			if indexByID(m.Thread, messageID, messageKey) >= 0 {
				return m.ID
			}
		}
	}
	return ""
}

func (v *Viewer) hasUnreadReplies(parentID string) bool {
	for reply, p := range v.unreadReplyParents {
		if p == parentID && v.UnreadByUserMessageIDs.Has(reply) {
			return true
		}
	}
	for _, c := range v.Chats {
		if i := indexByID(c.Messages, parentID, messageKey); i >= 0 {
			for _, r := range c.Messages[i].Thread {
				if v.UnreadByUserMessageIDs.Has(r.ID) {
					return true
				}
			}
		}
	}
	return false
}

func (s *Store) handleUnreadComment(ev *model.UnreadCommentEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil || ev.UserID != v.ID {
		return
	}
	commentID := ev.CommentID
	if ev.Comment != nil {
		commentID = ev.Comment.ID
	}
	switch ev.ActionType {
	case model.ActionAdded:
		d := v.activeDiscussion(ev.DiscussionID)
		if d == nil || commentID == "" {
			return
		}
		if ev.Comment != nil && d.insertComment(newComment(ev.Comment, d.ID, s.renderHTML)) {
			s.notify(ChangeComment, commentID, d.ID)
		}
		if v.UnreadCommentIDs.add(commentID) {
			s.notify(ChangeUnreadComment, commentID, d.ID)
		}
	case model.ActionDeleted:
		if d := v.discussion(ev.DiscussionID); d != nil && d.removeComment(commentID) {
			s.notify(ChangeCommentRemoved, commentID, d.ID)
		}
		if v.UnreadCommentIDs.remove(commentID) {
			s.notify(ChangeRead, commentID, ev.DiscussionID)
		}
	}
}

func (s *Store) handleUnreadByUserMessage(ev *model.UnreadByUserMessageEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil || ev.UserID != v.ID {
		return
	}
	switch ev.ActionType {
	case model.ActionAdded:
		if ev.ChatID != "" && v.chat(ev.ChatID) == nil {
			return
		}
		if v.addUnreadByUser(ev.MessageID, ev.ParentMessageID) {
			s.notify(ChangeUnreadMessage, ev.MessageID, ev.ChatID)
		}
	case model.ActionDeleted:
		for _, id := range v.removeUnreadByUser(ev.MessageID, ev.ParentMessageID) {
			s.notify(ChangeRead, id, ev.ChatID)
		}
	}
}

func (s *Store) handleUnreadBySomeoneMessage(ev *model.UnreadBySomeoneMessageEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil || ev.UserID != v.ID {
		return
	}
	switch ev.ActionType {
	case model.ActionAdded:
		if v.UnreadBySomeoneMessageIDs.add(ev.MessageID) {
			s.notify(ChangeUnreadBySomeone, ev.MessageID, "")
		}
	case model.ActionDeleted:
		if v.UnreadBySomeoneMessageIDs.remove(ev.MessageID) {
			s.notify(ChangeRead, ev.MessageID, "")
		}
	}
}
