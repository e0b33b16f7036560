package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuthorizationStatus tracks the processor-side hold on the user's payment method.
type AuthorizationStatus string

const (
	AuthAuthorized    AuthorizationStatus = "authorized"
	AuthCaptured      AuthorizationStatus = "captured"
	AuthVoided        AuthorizationStatus = "voided"
	AuthCaptureFailed AuthorizationStatus = "capture_failed"
)

func (s AuthorizationStatus) Valid() bool {
	switch s {
	case AuthAuthorized, AuthCaptured, AuthVoided, AuthCaptureFailed:
		return true
	}
	return false
}

// PaymentAuthorization is the stage-one record a capture is only ever performed against.
type PaymentAuthorization struct {
	Base
	ExecutionID              uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex" json:"execution_id"`
	ProcessorAuthorizationID string              `gorm:"type:varchar(100);not null" json:"processor_authorization_id"`
	IdempotencyKey           string              `gorm:"type:varchar(100);not null;uniqueIndex" json:"idempotency_key"`
	PaymentMethodID          string              `gorm:"type:varchar(255);not null" json:"payment_method_id"`
	Amount                   decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"amount"`
	Status                   AuthorizationStatus `gorm:"type:varchar(20);not null" json:"status"`
	CaptureID                string              `gorm:"type:varchar(100)" json:"capture_id,omitempty"`
	FailureReason            string              `gorm:"type:text" json:"failure_reason,omitempty"`
	ExpiresAt                time.Time           `gorm:"not null" json:"expires_at"`
	CapturedAt               *time.Time          `json:"captured_at"`
}

func (a *PaymentAuthorization) BeforeSave(tx *gorm.DB) error {
	if !a.Status.Valid() {
		return invalidEnum("status", string(a.Status))
	}
	return nil
}

func (a *PaymentAuthorization) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
