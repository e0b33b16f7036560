package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FundingScheduleStatus tracks an expected payout into the fulfillment account.
type FundingScheduleStatus string

const (
	ScheduleScheduled FundingScheduleStatus = "scheduled"
	ScheduleReceived  FundingScheduleStatus = "received"
	ScheduleLate      FundingScheduleStatus = "late"
)

func (s FundingScheduleStatus) Valid() bool {
	switch s {
	case ScheduleScheduled, ScheduleReceived, ScheduleLate:
		return true
	}
	return false
}

// FundingSchedule is an expected payout from the payment processor to the fulfillment account.
type FundingSchedule struct {
	Base
	ExpectedAmount decimal.Decimal       `gorm:"type:decimal(18,4);not null" json:"expected_amount"`
	ExpectedAt     time.Time             `gorm:"not null;index" json:"expected_at"`
	ActualAmount   *decimal.Decimal      `gorm:"type:decimal(18,4)" json:"actual_amount"`
	ReceivedAt     *time.Time            `json:"received_at"`
	Status         FundingScheduleStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Reference      string                `gorm:"type:varchar(100)" json:"reference"`
	Notes          string                `gorm:"type:text" json:"notes,omitempty"`
}

func (s *FundingSchedule) BeforeSave(tx *gorm.DB) error {
	if !s.Status.Valid() {
		return invalidEnum("status", string(s.Status))
	}
	return nil
}

// FundingAlertType classifies a reconciliation alert.
type FundingAlertType string

const (
	AlertLowBalance           FundingAlertType = "low_balance"
	AlertCriticalBalance      FundingAlertType = "critical_balance"
	AlertPendingOrdersWaiting FundingAlertType = "pending_orders_waiting"
)

func (t FundingAlertType) Valid() bool {
	switch t {
	case AlertLowBalance, AlertCriticalBalance, AlertPendingOrdersWaiting:
		return true
	}
	return false
}

// FundingAlert is raised by Funding Reconciliation and resolved by an operator.
type FundingAlert struct {
	Base
	AlertType         FundingAlertType `gorm:"type:varchar(30);not null;index" json:"alert_type"`
	AvailableBalance  decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"available_balance"`
	OutstandingAmount decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"outstanding_amount"`
	ShortfallAmount   decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"shortfall_amount"`
	OrdersBlocked     int              `gorm:"not null;default:0" json:"orders_blocked"`
	Message           string           `gorm:"type:text" json:"message"`
	ResolvedAt        *time.Time       `gorm:"index" json:"resolved_at"`
	ResolvedBy        *uuid.UUID       `gorm:"type:uuid" json:"resolved_by"`
	ResolutionNote    string           `gorm:"type:text" json:"resolution_note,omitempty"`
}

func (a *FundingAlert) BeforeSave(tx *gorm.DB) error {
	if !a.AlertType.Valid() {
		return invalidEnum("alert_type", string(a.AlertType))
	}
	return nil
}
