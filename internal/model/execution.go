package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionStatus is the lifecycle state of one auto-gift execution.
type ExecutionStatus string

const (
	ExecPendingSelection ExecutionStatus = "pending_selection"
	ExecPendingApproval  ExecutionStatus = "pending_approval"
	ExecApproved         ExecutionStatus = "approved"
	ExecAwaitingFunds    ExecutionStatus = "awaiting_funds"
	ExecPaymentConfirmed ExecutionStatus = "payment_confirmed"
	ExecProcessing       ExecutionStatus = "processing"
	ExecCaptureFailed    ExecutionStatus = "capture_failed"
	ExecSubmissionFailed ExecutionStatus = "submission_failed"

	ExecSelectionFailed ExecutionStatus = "selection_failed"
	ExecRejected        ExecutionStatus = "rejected"
	ExecExpired         ExecutionStatus = "expired"
	ExecPaymentFailed   ExecutionStatus = "payment_failed"
	ExecCancelled       ExecutionStatus = "cancelled"
	ExecDelivered       ExecutionStatus = "delivered"
)

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecPendingSelection: {ExecPendingApproval, ExecApproved, ExecSelectionFailed, ExecCancelled},
	ExecPendingApproval:  {ExecApproved, ExecRejected, ExecExpired, ExecCancelled},
	ExecApproved:         {ExecAwaitingFunds, ExecPaymentFailed, ExecCancelled},
	ExecAwaitingFunds:    {ExecPaymentConfirmed, ExecCaptureFailed, ExecCancelled},
	ExecCaptureFailed:    {ExecPaymentConfirmed, ExecCancelled},
	ExecPaymentConfirmed: {ExecProcessing, ExecSubmissionFailed},
	ExecSubmissionFailed: {ExecProcessing, ExecCancelled},
	ExecProcessing:       {ExecDelivered},
	ExecSelectionFailed:  nil,
	ExecRejected:         nil,
	ExecExpired:          nil,
	ExecPaymentFailed:    nil,
	ExecCancelled:        nil,
	ExecDelivered:        nil,
}

func (s ExecutionStatus) Valid() bool {
	_, ok := executionTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition can leave s.
func (s ExecutionStatus) IsTerminal() bool {
	next, ok := executionTransitions[s]
	return ok && len(next) == 0
}

// Retriggerable reports whether a new execution may be created for the same occurrence after s.
func (s ExecutionStatus) Retriggerable() bool {
	switch s {
	case ExecSelectionFailed, ExecPaymentFailed, ExecExpired, ExecRejected, ExecCancelled:
		return true
	}
	return false
}

// Cancellable reports whether the user may still cancel: nothing irrevocable has happened yet.
func (s ExecutionStatus) Cancellable() bool {
	switch s {
	case ExecPendingSelection, ExecPendingApproval, ExecApproved, ExecAwaitingFunds:
		return true
	}
	return false
}

func (s ExecutionStatus) CanTransitionTo(to ExecutionStatus) bool {
	for _, next := range executionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ExecutionStatuses lists every known status.
func ExecutionStatuses() []ExecutionStatus {
	out := make([]ExecutionStatus, 0, len(executionTransitions))
	for s := range executionTransitions {
		out = append(out, s)
	}
	return out
}

// DiscoveryMethod records how a product was found.
const (
	DiscoveryWishlist       = "wishlist"
	DiscoveryRecommendation = "ai_recommendation"
)

// SelectedProduct is the snapshot of a chosen product at selection time.
type SelectedProduct struct {
	ProductID       string          `json:"product_id"`
	Title           string          `json:"title"`
	Category        string          `json:"category,omitempty"`
	Price           decimal.Decimal `json:"price"`
	ImageURL        string          `json:"image_url,omitempty"`
	DiscoveryMethod string          `json:"discovery_method"`
	Confidence      float64         `json:"confidence,omitempty"`
}

// AIAttribution is recorded when the recommender contributed to the selection.
type AIAttribution struct {
	AgentName       string  `json:"agent_name"`
	ConfidenceScore float64 `json:"confidence_score"`
	DiscoveryMethod string  `json:"discovery_method"`
}

// AutoGiftExecution is one attempt to fulfil a rule for one occurrence date.
//
// ActiveKey holds "<rule_id>|<execution_date>" while the execution counts toward the
// one-active-execution-per-occurrence guarantee and is cleared (NULL) once the execution ends in a
// retriggerable terminal state, so the unique index rejects a second live execution.
type AutoGiftExecution struct {
	Base
	UserID                     uuid.UUID                           `gorm:"type:uuid;not null;index" json:"user_id"`
	RuleID                     uuid.UUID                           `gorm:"type:uuid;not null;index:idx_exec_rule_date" json:"rule_id"`
	Rule                       *AutoGiftRule                       `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
	EventID                    uuid.UUID                           `gorm:"type:uuid;not null" json:"event_id"`
	ExecutionDate              Date                                `gorm:"type:varchar(10);not null;index:idx_exec_rule_date" json:"execution_date"`
	Status                     ExecutionStatus                     `gorm:"type:varchar(30);not null;index" json:"status"`
	SelectedProducts           datatypes.JSONSlice[SelectedProduct] `json:"selected_products"`
	AIAttribution              *datatypes.JSONType[AIAttribution]  `json:"ai_attribution,omitempty"`
	OrderID                    *uuid.UUID                          `gorm:"type:uuid" json:"order_id"`
	GiftMessage                string                              `gorm:"type:text" json:"gift_message"`
	TotalAmount                decimal.Decimal                     `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	FailureReason              string                              `gorm:"type:text" json:"failure_reason,omitempty"`
	RequiresManualIntervention bool                                `gorm:"not null;default:false;index" json:"requires_manual_intervention"`
	ActiveKey                  *string                             `gorm:"type:varchar(80);uniqueIndex" json:"-"`
	ClaimedBy                  *string                             `gorm:"type:varchar(100)" json:"-"`
	ClaimedUntil               *time.Time                          `json:"-"`
	StatusChangedAt            time.Time                           `json:"status_changed_at"`
}

func (e *AutoGiftExecution) BeforeSave(tx *gorm.DB) error {
	if !e.Status.Valid() {
		return invalidEnum("status", string(e.Status))
	}
	return nil
}

// OccurrenceKey identifies the (rule, occurrence date) pair an execution belongs to.
func OccurrenceKey(ruleID uuid.UUID, date Date) string {
	return fmt.Sprintf("%s|%s", ruleID, date)
}

// SumPrices totals the snapshot prices.
func SumPrices(products []SelectedProduct) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Price)
	}
	return total
}
