package model

import "time"

// Имена realtime-событий (входящие и исходящие).
const (
	EventComment                = "commentEvent"
	EventDiscussion             = "discussionEvent"
	EventMessage                = "messageEvent"
	EventChat                   = "chatEvent"
	EventTypingStatus           = "typingStatus"
	EventOnlineStatus           = "onlineStatusEvent"
	EventTeam                   = "teamEvent"
	EventUnreadComment          = "unreadCommentEvent"
	EventUnreadByUserMessage    = "unreadByUserMessageEvent"
	EventUnreadBySomeoneMessage = "unreadBySomeoneMessageEvent"

	EventReconnect  = "reconnect"
	EventDisconnect = "disconnect"
	EventError      = "error"

	EventJoinTeamRoom        = "joinTeamRoom"
	EventLeaveTeamRoom       = "leaveTeamRoom"
	EventJoinDiscussionRoom  = "joinDiscussionRoom"
	EventLeaveDiscussionRoom = "leaveDiscussionRoom"
	EventJoinChatRoom        = "joinChatRoom"
	EventLeaveChatRoom       = "leaveChatRoom"
)

type ActionType string

const (
	ActionAdded                    ActionType = "added"
	ActionEdited                   ActionType = "edited"
	ActionDeleted                  ActionType = "deleted"
	ActionCleared                  ActionType = "cleared"
	ActionRemovedMember            ActionType = "removedMember"
	ActionAddedFileInsideComment   ActionType = "addedFileInsideComment"
	ActionDeletedFileInsideComment ActionType = "deletedFileInsideComment"
	ActionAddedFileInsideMessage   ActionType = "addedFileInsideMessage"
	ActionDeletedFileInsideMessage ActionType = "deletedFileInsideMessage"
)

type CommentEvent struct {
	ActionType   ActionType  `json:"actionType"`
	DiscussionID string      `json:"discussionId"`
	CommentID    string      `json:"commentId,omitempty"`
	Comment      *CommentDTO `json:"comment,omitempty"`
	FileName     string      `json:"fileName,omitempty"`
	FileURL      string      `json:"fileUrl,omitempty"`
	AddedAt      time.Time   `json:"addedAt,omitempty"`
}

func (e *CommentEvent) Validate() error {
	if e.ActionType == "" {
		return missing("commentEvent", "actionType")
	}
	if e.Comment != nil {
		return e.Comment.Validate()
	}
	return nil
}

type DiscussionEvent struct {
	ActionType   ActionType     `json:"actionType"`
	DiscussionID string         `json:"discussionId,omitempty"`
	Discussion   *DiscussionDTO `json:"discussion,omitempty"`
}

func (e *DiscussionEvent) Validate() error {
	if e.ActionType == "" {
		return missing("discussionEvent", "actionType")
	}
	if e.Discussion != nil {
		return e.Discussion.Validate()
	}
	return nil
}

type MessageEvent struct {
	ActionType      ActionType  `json:"actionType"`
	ChatID          string      `json:"chatId"`
	MessageID       string      `json:"messageId,omitempty"`
	ParentMessageID string      `json:"parentMessageId,omitempty"`
	Message         *MessageDTO `json:"message,omitempty"`
	FileName        string      `json:"fileName,omitempty"`
	FileURL         string      `json:"fileUrl,omitempty"`
	AddedAt         time.Time   `json:"addedAt,omitempty"`
}

func (e *MessageEvent) Validate() error {
	if e.ActionType == "" {
		return missing("messageEvent", "actionType")
	}
	if e.Message != nil {
		return e.Message.Validate()
	}
	return nil
}

type ChatEvent struct {
	ActionType ActionType `json:"actionType"`
	ChatID     string     `json:"chatId,omitempty"`
	Chat       *ChatDTO   `json:"chat,omitempty"`
}

func (e *ChatEvent) Validate() error {
	if e.ActionType == "" {
		return missing("chatEvent", "actionType")
	}
	if e.Chat != nil {
		return e.Chat.Validate()
	}
	return nil
}

type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

func (e *TypingEvent) Validate() error {
	if e.UserID == "" {
		return missing("typingStatus", "userId")
	}
	return nil
}

type OnlineStatusEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (e *OnlineStatusEvent) Validate() error {
	if e.UserID == "" {
		return missing("onlineStatusEvent", "userId")
	}
	return nil
}

type TeamEvent struct {
	ActionType ActionType `json:"actionType"`
	TeamID     string     `json:"teamId,omitempty"`
	UserID     string     `json:"userId,omitempty"`
	Team       *TeamDTO   `json:"team,omitempty"`
}

func (e *TeamEvent) Validate() error {
	if e.ActionType == "" {
		return missing("teamEvent", "actionType")
	}
	if e.Team != nil {
		return e.Team.Validate()
	}
	return nil
}

// UnreadCommentEvent адресован конкретному пользователю (UserID), но приходит
// во всю комнату команды.
type UnreadCommentEvent struct {
	ActionType   ActionType  `json:"actionType"`
	UserID       string      `json:"userId"`
	DiscussionID string      `json:"discussionId"`
	CommentID    string      `json:"commentId,omitempty"`
	Comment      *CommentDTO `json:"comment,omitempty"`
}

func (e *UnreadCommentEvent) Validate() error {
	if e.ActionType == "" {
		return missing("unreadCommentEvent", "actionType")
	}
	if e.Comment != nil {
		return e.Comment.Validate()
	}
	return nil
}

type UnreadByUserMessageEvent struct {
	ActionType      ActionType `json:"actionType"`
	UserID          string     `json:"userId"`
	ChatID          string     `json:"chatId,omitempty"`
	MessageID       string     `json:"messageId"`
	ParentMessageID string     `json:"parentMessageId,omitempty"`
}

func (e *UnreadByUserMessageEvent) Validate() error {
	if e.ActionType == "" {
		return missing("unreadByUserMessageEvent", "actionType")
	}
	if e.MessageID == "" {
		return missing("unreadByUserMessageEvent", "messageId")
	}
	return nil
}

type UnreadBySomeoneMessageEvent struct {
	ActionType ActionType `json:"actionType"`
	UserID     string     `json:"userId"`
	MessageID  string     `json:"messageId"`
}

func (e *UnreadBySomeoneMessageEvent) Validate() error {
	if e.ActionType == "" {
		return missing("unreadBySomeoneMessageEvent", "actionType")
	}
	if e.MessageID == "" {
		return missing("unreadBySomeoneMessageEvent", "messageId")
	}
	return nil
}

// RoomPayload — тело join*/leave* событий; заполнено одно из полей.
type RoomPayload struct {
	TeamID       string `json:"teamId,omitempty"`
	DiscussionID string `json:"discussionId,omitempty"`
	ChatID       string `json:"chatId,omitempty"`
}
