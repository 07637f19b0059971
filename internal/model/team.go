package model

import "time"

type TeamDTO struct {
	ID                   string     `json:"_id"`
	Name                 *string    `json:"name,omitempty"`
	Slug                 string     `json:"slug,omitempty"`
	AvatarURL            *string    `json:"avatarUrl,omitempty"`
	TeamLeaderID         string     `json:"teamLeaderId,omitempty"`
	TeamLeaderEmail      string     `json:"teamLeaderEmail,omitempty"`
	IsSubscriptionActive *bool      `json:"isSubscriptionActive,omitempty"`
	IsPaymentFailed      *bool      `json:"isPaymentFailed,omitempty"`
	TrialPeriodStartDate *time.Time `json:"trialPeriodStartDate,omitempty"`
	MemberIDs            []string   `json:"memberIds,omitempty"`
}

func (t *TeamDTO) Validate() error {
	if t.ID == "" {
		return missing("team", "_id")
	}
	return nil
}
