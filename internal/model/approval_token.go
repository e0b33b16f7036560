package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalChannel records how a token was consumed.
type ApprovalChannel string

const (
	ChannelEmailLink ApprovalChannel = "email_link"
	ChannelInApp     ApprovalChannel = "in_app"
)

func (c ApprovalChannel) Valid() bool {
	return c == ChannelEmailLink || c == ChannelInApp
}

// ApprovalToken gates the pending_approval state. Only the SHA-256 of the opaque token is stored.
// ApprovedAt and RejectedAt are mutually exclusive and at most one is ever set.
type ApprovalToken struct {
	Base
	UserID          uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	ExecutionID     uuid.UUID        `gorm:"type:uuid;not null;index" json:"execution_id"`
	TokenHash       string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ApprovedAt      *time.Time       `json:"approved_at"`
	RejectedAt      *time.Time       `json:"rejected_at"`
	ApprovalChannel *ApprovalChannel `gorm:"type:varchar(20)" json:"approval_channel"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	ExpiresAt       time.Time        `gorm:"not null;index" json:"expires_at"`
}

func (t *ApprovalToken) BeforeSave(tx *gorm.DB) error {
	if t.ApprovalChannel != nil && !t.ApprovalChannel.Valid() {
		return invalidEnum("approval_channel", string(*t.ApprovalChannel))
	}
	return nil
}

func (t *ApprovalToken) Consumed() bool {
	return t.ApprovedAt != nil || t.RejectedAt != nil
}

func (t *ApprovalToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
