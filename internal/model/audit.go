package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateRule       = "CREATE_RULE"
	ActionUpdateRule       = "UPDATE_RULE"
	ActionDeactivateRule   = "DEACTIVATE_RULE"
	ActionApproveExecution = "APPROVE_EXECUTION"
	ActionRejectExecution  = "REJECT_EXECUTION"
	ActionCancelExecution  = "CANCEL_EXECUTION"
	ActionRetrigger        = "RETRIGGER_EXECUTION"
	ActionRetryCapture     = "RETRY_CAPTURE"
	ActionResubmitOrder    = "RESUBMIT_ORDER"
	ActionCancelOrder      = "CANCEL_ORDER"
	ActionMarkDelivered    = "MARK_DELIVERED"
	ActionResolveFunding   = "RESOLVE_FUNDING_ALERT"
	ActionResolveAlert     = "RESOLVE_OPERATOR_ALERT"
	ActionRecordPayout     = "RECORD_PAYOUT"
	ActionScheduleFunding  = "SCHEDULE_FUNDING"
)

// AuditLog tracks who did what and when for user and operator actions
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for the scheduler
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
