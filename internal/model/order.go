package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderStatus tracks the gift order from authorization to delivery.
type OrderStatus string

const (
	OrderAuthorized       OrderStatus = "authorized"
	OrderPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderProcessing       OrderStatus = "processing"
	OrderCaptureFailed    OrderStatus = "capture_failed"
	OrderSubmissionFailed OrderStatus = "submission_failed"
	OrderCancelled        OrderStatus = "cancelled"
	OrderDelivered        OrderStatus = "delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderAuthorized, OrderPaymentConfirmed, OrderProcessing, OrderCaptureFailed,
		OrderSubmissionFailed, OrderCancelled, OrderDelivered:
		return true
	}
	return false
}

// FundingStatus tracks whether the fulfillment account can cover the order.
type FundingStatus string

const (
	FundingFunded         FundingStatus = "funded"
	FundingAwaitingFunds  FundingStatus = "awaiting_funds"
	FundingFundsAllocated FundingStatus = "funds_allocated"
)

func (s FundingStatus) Valid() bool {
	switch s {
	case FundingFunded, FundingAwaitingFunds, FundingFundsAllocated:
		return true
	}
	return false
}

// GiftOrder is the order placed on behalf of an execution.
type GiftOrder struct {
	Base
	UserID                 uuid.UUID                            `gorm:"type:uuid;not null;index" json:"user_id"`
	ExecutionID            uuid.UUID                            `gorm:"type:uuid;not null;uniqueIndex" json:"execution_id"`
	PaymentAuthorizationID *uuid.UUID                           `gorm:"type:uuid" json:"payment_authorization_id"`
	Status                 OrderStatus                          `gorm:"type:varchar(30);not null;index" json:"status"`
	FundingStatus          FundingStatus                        `gorm:"type:varchar(30);not null;index" json:"funding_status"`
	HoldReason             string                               `gorm:"type:text" json:"hold_reason,omitempty"`
	FundsAllocatedAt       *time.Time                           `json:"funds_allocated_at"`
	ExpectedFundingAt      *time.Time                           `json:"expected_funding_at"`
	FundingAlertID         *uuid.UUID                           `gorm:"type:uuid;index" json:"funding_alert_id"`
	TotalAmount            decimal.Decimal                      `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	DeliveryDate           Date                                 `gorm:"type:varchar(10);not null;index" json:"delivery_date"`
	Items                  datatypes.JSONSlice[SelectedProduct] `json:"items"`
	ShippingAddress        datatypes.JSONType[ShippingAddress]  `json:"shipping_address"`
	GiftMessage            string                               `gorm:"type:text" json:"gift_message"`
	VendorOrderID          string                               `gorm:"type:varchar(100)" json:"vendor_order_id,omitempty"`
	SubmittedAt            *time.Time                           `json:"submitted_at"`
	ClaimedBy              *string                              `gorm:"type:varchar(100)" json:"-"`
	ClaimedUntil           *time.Time                           `json:"-"`
}

func (o *GiftOrder) BeforeSave(tx *gorm.DB) error {
	if !o.Status.Valid() {
		return invalidEnum("status", string(o.Status))
	}
	if !o.FundingStatus.Valid() {
		return invalidEnum("funding_status", string(o.FundingStatus))
	}
	return nil
}
