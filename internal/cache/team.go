package cache

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

type Team struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Slug                 string    `json:"slug"`
	AvatarURL            string    `json:"avatarUrl"`
	LeaderID             string    `json:"leaderId"`
	LeaderEmail          string    `json:"leaderEmail"`
	IsSubscriptionActive bool      `json:"isSubscriptionActive"`
	IsPaymentFailed      bool      `json:"isPaymentFailed"`
	TrialPeriodStartDate time.Time `json:"trialPeriodStartDate"`
	MemberIDs            []string  `json:"memberIds"`
	// Members == nil — состав команды ещё не загружался.
	Members map[string]*Member `json:"members"`
}

// Member — участник команды (или приглашённый, Status == "invited").
type Member struct {
	ID                      string `json:"id"`
	Email                   string `json:"email"`
	DisplayName             string `json:"displayName"`
	AvatarURL               string `json:"avatarUrl"`
	Status                  string `json:"status"`
	IsOnline                bool   `json:"isOnline"`
	IsChatParticipantTyping bool   `json:"isChatParticipantTyping"`
}

func teamKey(t *Team) string { return t.ID }

func newTeam(dto *model.TeamDTO) *Team {
	t := &Team{ID: dto.ID}
	t.applyPatch(dto)
	return t
}

func (t *Team) applyPatch(dto *model.TeamDTO) {
	if dto.Name != nil {
		t.Name = *dto.Name
	}
	if dto.Slug != "" {
		t.Slug = dto.Slug
	}
	if dto.AvatarURL != nil {
		t.AvatarURL = *dto.AvatarURL
	}
	if dto.TeamLeaderID != "" {
		t.LeaderID = dto.TeamLeaderID
	}
	if dto.TeamLeaderEmail != "" {
		t.LeaderEmail = dto.TeamLeaderEmail
	}
	if dto.IsSubscriptionActive != nil {
		t.IsSubscriptionActive = *dto.IsSubscriptionActive
	}
	if dto.IsPaymentFailed != nil {
		t.IsPaymentFailed = *dto.IsPaymentFailed
	}
	if dto.TrialPeriodStartDate != nil {
		t.TrialPeriodStartDate = *dto.TrialPeriodStartDate
	}
	if dto.MemberIDs != nil {
		t.MemberIDs = slices.Clone(dto.MemberIDs)
	}
}

func newMember(dto *model.UserDTO) *Member {
	m := &Member{ID: dto.ID, Email: dto.Email, Status: dto.Status}
	if dto.DisplayName != nil {
		m.DisplayName = *dto.DisplayName
	}
	if dto.AvatarURL != nil {
		m.AvatarURL = *dto.AvatarURL
	}
	if dto.IsOnline != nil {
		m.IsOnline = *dto.IsOnline
	}
	return m
}

// keepRosters переносит загруженные составы команд в пересобранного зрителя.
// Признаки набора текста сбрасываются вместе с таймерами.
func keepRosters(old, v *Viewer) {
	if old == nil {
		return
	}
	for _, t := range v.Teams {
		prev := old.team(t.ID)
		if prev == nil || prev.Members == nil {
			continue
		}
		t.Members = prev.Members
		for _, m := range t.Members {
			m.IsChatParticipantTyping = false
		}
	}
}

// LoadMembers загружает состав команды и целиком заменяет им текущий.
// Повторный вызов во время загрузки ничего не делает.
func (s *Store) LoadMembers(ctx context.Context, teamID string) error {
	if s.opts.ServerRendering {
		return nil
	}
	key := "members/" + teamID
	started := false
	err := s.update(func(v *Viewer) error {
		if v.team(teamID) == nil {
			return ErrNotFound
		}
		started = s.guard(key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.LoadMembers %s: %w", teamID, err)
	}
	if !started {
		return nil
	}
	defer s.release(key)

	var dtos dtoList[model.UserDTO, *model.UserDTO]
	if err := s.call(ctx, "cache.LoadMembers", pathTeamMembers(teamID), remote.Request{Method: http.MethodGet}, &dtos); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		t := v.team(teamID)
		if t == nil {
			return nil
		}
		t.Members = make(map[string]*Member, len(dtos))
		for i := range dtos {
			t.Members[dtos[i].ID] = newMember(&dtos[i])
		}
		if len(t.Members) == 0 && t.LeaderID == v.ID {
			t.Members[v.ID] = v.asMember()
		}
		s.notify(ChangeMembers, "", teamID)
		return nil
	})
}

// LoadAllMembers загружает составы всех команд зрителя параллельно.
func (s *Store) LoadAllMembers(ctx context.Context) error {
	var ids []string
	if err := s.update(func(v *Viewer) error {
		for _, t := range v.Teams {
			ids = append(ids, t.ID)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("cache.LoadAllMembers: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error { return s.LoadMembers(ctx, id) })
	}
	return g.Wait()
}

// InviteMember приглашает по email; в состав добавляется заглушка со статусом "invited".
func (s *Store) InviteMember(ctx context.Context, teamID, email string) error {
	var dto model.UserDTO
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"email": email}}
	if err := s.call(ctx, "cache.InviteMember", pathInvitations(teamID), req, &dto); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		t := v.team(teamID)
		if t == nil || t.Members == nil {
			return nil
		}
		m := newMember(&dto)
		if m.Email == "" {
			m.Email = email
		}
		m.Status = model.UserStatusInvited
		t.Members[m.ID] = m
		s.notify(ChangeMembers, m.ID, teamID)
		return nil
	})
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.RemoveMember", pathTeamMember(teamID, userID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.deleteMember(v.team(teamID), userID)
		return nil
	})
}

func (s *Store) RevokeInvitation(ctx context.Context, teamID, invitationID string) error {
	req := remote.Request{Method: http.MethodDelete}
	if err := s.call(ctx, "cache.RevokeInvitation", pathInvitation(teamID, invitationID), req, nil); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		s.deleteMember(v.team(teamID), invitationID)
		return nil
	})
}

func (s *Store) deleteMember(t *Team, userID string) {
	if t == nil {
		return
	}
	t.MemberIDs = without(t.MemberIDs, userID)
	if _, ok := t.Members[userID]; ok {
		delete(t.Members, userID)
		s.notify(ChangeMembers, userID, t.ID)
	}
}

// EditTeam меняет название и аватар команды.
func (s *Store) EditTeam(ctx context.Context, teamID, name, avatarURL string) error {
	var dto model.TeamDTO
	req := remote.Request{Method: http.MethodPatch, Body: map[string]any{"name": name, "avatarUrl": avatarURL}}
	if err := s.call(ctx, "cache.EditTeam", pathTeam(teamID), req, &dto); err != nil {
		return err
	}
	return s.update(func(v *Viewer) error {
		if t := v.team(teamID); t != nil {
			t.applyPatch(&dto)
			s.notify(ChangeTeam, teamID, "")
		}
		return nil
	})
}

// SetCurrentTeam переключает текущую команду: выход из комнат старой команды,
// вход в комнату новой и перезагрузка обсуждений и чатов.
func (s *Store) SetCurrentTeam(ctx context.Context, teamID string) error {
	if err := s.update(func(v *Viewer) error {
		if v.team(teamID) == nil {
			return ErrNotFound
		}
		return nil
	}); err != nil {
		return fmt.Errorf("cache.SetCurrentTeam %s: %w", teamID, err)
	}
	req := remote.Request{Method: http.MethodPost, Body: map[string]any{"teamId": teamID}}
	if err := s.call(ctx, "cache.SetCurrentTeam", pathCurrentTeam, req, nil); err != nil {
		return err
	}
	err := s.update(func(v *Viewer) error {
		if v.CurrentTeamID == teamID {
			return nil
		}
		s.closeRooms()
		if s.teamRoom != "" {
			s.emit(model.EventLeaveTeamRoom, model.RoomPayload{TeamID: s.teamRoom})
		}
		v.CurrentTeamID = teamID
		v.ActiveDiscussions, v.ArchivedDiscussions, v.Chats = nil, nil, nil
		if s.initial != nil {
			s.initial.CurrentTeamID = teamID
			s.initial.Discussions, s.initial.Chats = nil, nil
		}
		if len(s.offs) > 0 {
			s.joinTeamRoom(teamID)
		}
		s.notify(ChangeViewer, v.ID, "")
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.SetCurrentTeam: %w", err)
	}
	if err := s.LoadDiscussions(ctx, false); err != nil {
		return err
	}
	if err := s.LoadDiscussions(ctx, true); err != nil {
		return err
	}
	return s.LoadChats(ctx)
}

// closeRooms покидает комнаты всех открытых обсуждений и чатов. Под блокировкой.
func (s *Store) closeRooms() {
	for id, off := range s.discussionRooms {
		s.emit(model.EventLeaveDiscussionRoom, model.RoomPayload{DiscussionID: id})
		off()
	}
	for id, off := range s.chatRooms {
		s.emit(model.EventLeaveChatRoom, model.RoomPayload{ChatID: id})
		off()
	}
	clear(s.discussionRooms)
	clear(s.chatRooms)
}

func (s *Store) handleTeamEvent(ev *model.TeamEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil {
		return
	}
	id := ev.TeamID
	if id == "" && ev.Team != nil {
		id = ev.Team.ID
	}
	t := v.team(id)
	if t == nil {
		return
	}
	switch ev.ActionType {
	case model.ActionEdited:
		if ev.Team != nil {
			t.applyPatch(ev.Team)
			s.notify(ChangeTeam, id, "")
		}
	case model.ActionDeleted:
		s.dropTeam(v, id)
	case model.ActionRemovedMember:
		if ev.UserID == v.ID {
			s.dropTeam(v, id)
			return
		}
		s.deleteMember(t, ev.UserID)
	}
}

// dropTeam убирает команду; если она была текущей, текущей становится первая оставшаяся.
func (s *Store) dropTeam(v *Viewer, id string) {
	v.Teams = slices.DeleteFunc(v.Teams, func(t *Team) bool { return t.ID == id })
	s.notify(ChangeTeamRemoved, id, "")
	if v.CurrentTeamID != id {
		s.forgetTeam(id)
		return
	}
	logger.Infof("cache: current team %s removed", id)
	s.closeRooms()
	if s.teamRoom == id {
		s.emit(model.EventLeaveTeamRoom, model.RoomPayload{TeamID: id})
		s.teamRoom = ""
	}
	for _, d := range slices.Concat(v.ActiveDiscussions, v.ArchivedDiscussions) {
		s.dropDiscussion(v, d.ID)
	}
	for _, c := range slices.Clone(v.Chats) {
		s.dropChat(v, c.ID)
	}
	v.CurrentTeamID = ""
	if len(v.Teams) > 0 {
		v.CurrentTeamID = v.Teams[0].ID
		if len(s.offs) > 0 {
			s.joinTeamRoom(v.CurrentTeamID)
		}
	}
	s.forgetCurrentTeam(id, v.CurrentTeamID)
	s.notify(ChangeViewer, v.ID, "")
}

func (s *Store) handleOnlineStatus(ev *model.OnlineStatusEvent) {
	s.lock()
	defer s.unlock()
	v := s.viewer
	if v == nil {
		return
	}
	for _, t := range v.Teams {
		if m, ok := t.Members[ev.UserID]; ok && m.IsOnline != ev.IsOnline {
			m.IsOnline = ev.IsOnline
			s.notify(ChangePresence, ev.UserID, t.ID)
		}
	}
}
