package model

import "time"

type DiscussionDTO struct {
	ID             string       `json:"_id"`
	TeamID         string       `json:"teamId,omitempty"`
	Name           *string      `json:"name,omitempty"`
	CreatedUserID  string       `json:"createdUserId,omitempty"`
	MemberIDs      []string     `json:"memberIds,omitempty"`
	IsArchived     *bool        `json:"isArchived,omitempty"`
	FirstCommentID string       `json:"firstCommentId,omitempty"`
	LastUpdatedAt  *time.Time   `json:"lastUpdatedAt,omitempty"`
	Comments       []CommentDTO `json:"comments,omitempty"`
}

func (d *DiscussionDTO) Validate() error {
	if d.ID == "" {
		return missing("discussion", "_id")
	}
	for i := range d.Comments {
		if err := d.Comments[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CommentDTO: указатели различают «поле не прислано» и нулевое значение —
// applyPatch не трогает отсутствующие поля. Files == nil означает «не прислано».
type CommentDTO struct {
	ID            string     `json:"_id"`
	DiscussionID  string     `json:"discussionId,omitempty"`
	CreatedUserID string     `json:"createdUserId,omitempty"`
	Content       *string    `json:"content,omitempty"`
	HTMLContent   *string    `json:"htmlContent,omitempty"`
	IsEdited      *bool      `json:"isEdited,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt,omitempty"`
	Files         []FileDTO  `json:"files,omitempty"`
}

func (c *CommentDTO) Validate() error {
	if c.ID == "" {
		return missing("comment", "_id")
	}
	return nil
}
