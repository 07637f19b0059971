package model

import "time"

type MessageDTO struct {
	ID                    string     `json:"_id"`
	ChatID                string     `json:"chatId,omitempty"`
	CreatedUserID         string     `json:"createdUserId,omitempty"`
	ParentMessageID       string     `json:"parentMessageId,omitempty"`
	Content               *string    `json:"content,omitempty"`
	HTMLContent           *string    `json:"htmlContent,omitempty"`
	IsEdited              *bool      `json:"isEdited,omitempty"`
	CountOfThreadMessages *int       `json:"countOfThreadMessages,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastUpdatedAt         *time.Time `json:"lastUpdatedAt,omitempty"`
	Files                 []FileDTO  `json:"files,omitempty"`
}

func (m *MessageDTO) Validate() error {
	if m.ID == "" {
		return missing("message", "_id")
	}
	return nil
}
