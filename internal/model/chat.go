package model

import "time"

type ChatDTO struct {
	ID                      string       `json:"_id"`
	TeamID                  string       `json:"teamId,omitempty"`
	CreatedUserID           string       `json:"createdUserId,omitempty"`
	ChatParticipantIDs      []string     `json:"chatParticipantIds,omitempty"`
	NumberOfMessagesPerChat *int         `json:"numberOfMessagesPerChat,omitempty"`
	LastUpdatedAt           *time.Time   `json:"lastUpdatedAt,omitempty"`
	Messages                []MessageDTO `json:"messages,omitempty"`
}

func (c *ChatDTO) Validate() error {
	if c.ID == "" {
		return missing("chat", "_id")
	}
	for i := range c.Messages {
		if err := c.Messages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
