package model

// UserStatusInvited — статус заглушки участника, которому отправлено приглашение.
const UserStatusInvited = "invited"

// UserDTO — пользователь: и зритель (viewer), и участник команды.
// Списки непрочитанного заполняются только для зрителя.
type UserDTO struct {
	ID            string  `json:"_id"`
	Email         string  `json:"email"`
	DisplayName   *string `json:"displayName,omitempty"`
	AvatarURL     *string `json:"avatarUrl,omitempty"`
	ShowDarkTheme *bool   `json:"showDarkTheme,omitempty"`
	DefaultTeamID string  `json:"defaultTeamId,omitempty"`
	IsOnline      *bool   `json:"isOnline,omitempty"`
	Status        string  `json:"status,omitempty"`

	PinnedDiscussionIDs       []string `json:"pinnedDiscussionIds,omitempty"`
	UnreadCommentIDs          []string `json:"unreadCommentIds,omitempty"`
	UnreadByUserMessageIDs    []string `json:"unreadByUserMessageIds,omitempty"`
	UnreadBySomeoneMessageIDs []string `json:"unreadBySomeoneMessageIds,omitempty"`
}

func (u *UserDTO) Validate() error {
	if u.ID == "" {
		return missing("user", "_id")
	}
	return nil
}

// InitialData — payload первоначальной загрузки страницы: зритель, его команды и
// обсуждения/чаты текущей команды.
type InitialData struct {
	User          *UserDTO        `json:"user"`
	Teams         []TeamDTO       `json:"teams"`
	CurrentTeamID string          `json:"currentTeamId,omitempty"`
	Discussions   []DiscussionDTO `json:"discussions,omitempty"`
	Chats         []ChatDTO       `json:"chats,omitempty"`
}

func (d *InitialData) Validate() error {
	if d.User == nil {
		return missing("initialData", "user")
	}
	if err := d.User.Validate(); err != nil {
		return err
	}
	for i := range d.Teams {
		if err := d.Teams[i].Validate(); err != nil {
			return err
		}
	}
	for i := range d.Discussions {
		if err := d.Discussions[i].Validate(); err != nil {
			return err
		}
	}
	for i := range d.Chats {
		if err := d.Chats[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
