package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperatorAlertKind names the failure that needs a human in Trunkline.
type OperatorAlertKind string

const (
	OperatorAlertCaptureFailed        OperatorAlertKind = "capture_failed"
	OperatorAlertSubmissionFailed     OperatorAlertKind = "submission_failed"
	OperatorAlertAuthorizationMissing OperatorAlertKind = "authorization_missing"
)

func (k OperatorAlertKind) Valid() bool {
	switch k {
	case OperatorAlertCaptureFailed, OperatorAlertSubmissionFailed, OperatorAlertAuthorizationMissing:
		return true
	}
	return false
}

type OperatorAlert struct {
	Base
	Kind        OperatorAlertKind `gorm:"type:varchar(40);not null;index" json:"kind"`
	ExecutionID *uuid.UUID        `gorm:"type:uuid;index" json:"execution_id"`
	OrderID     *uuid.UUID        `gorm:"type:uuid" json:"order_id"`
	Message     string            `gorm:"type:text;not null" json:"message"`
	ResolvedAt  *time.Time        `gorm:"index" json:"resolved_at"`
	ResolvedBy  *uuid.UUID        `gorm:"type:uuid" json:"resolved_by"`
}

func (a *OperatorAlert) BeforeSave(tx *gorm.DB) error {
	if !a.Kind.Valid() {
		return invalidEnum("kind", string(a.Kind))
	}
	return nil
}
