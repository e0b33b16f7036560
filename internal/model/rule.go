package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInvalidEnum is returned by save hooks when a closed enumeration holds an unknown value.
var ErrInvalidEnum = errors.New("invalid enum value")

func invalidEnum(field, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrInvalidEnum, field, value)
}

// ProductSource selects where candidate products come from.
type ProductSource string

const (
	SourceWishlist ProductSource = "wishlist"
	SourceAI       ProductSource = "ai"
	SourceBoth     ProductSource = "both"
)

func (s ProductSource) Valid() bool {
	switch s {
	case SourceWishlist, SourceAI, SourceBoth:
		return true
	}
	return false
}

func (s ProductSource) UsesWishlist() bool { return s == SourceWishlist || s == SourceBoth }
func (s ProductSource) UsesAI() bool       { return s == SourceAI || s == SourceBoth }

// SelectionCriteria constrains the Product Selector for a rule.
type SelectionCriteria struct {
	Source             ProductSource    `json:"source"`
	Categories         []string         `json:"categories,omitempty"`
	MinPrice           *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice           *decimal.Decimal `json:"max_price,omitempty"`
	ExcludedProductIDs []string         `json:"excluded_product_ids,omitempty"`
	ExcludedCategories []string         `json:"excluded_categories,omitempty"`
	MaxItems           int              `json:"max_items,omitempty"`
}

// AutoGiftRule is a user's standing instruction to gift automatically for an occasion.
// Rules are deactivated, never hard-deleted.
type AutoGiftRule struct {
	Base
	UserID           uuid.UUID                              `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID          uuid.UUID                              `gorm:"type:uuid;not null;index" json:"event_id"`
	Event            *GiftEvent                             `gorm:"foreignKey:EventID" json:"event,omitempty"`
	RecipientUserID  *uuid.UUID                             `gorm:"type:uuid;index" json:"recipient_user_id"`
	RecipientEmail   string                                 `gorm:"type:varchar(255)" json:"recipient_email"`
	DateType         DateType                               `gorm:"type:varchar(20);not null" json:"date_type"`
	IsActive         bool                                   `gorm:"not null;index" json:"is_active"`
	BudgetLimit      decimal.Decimal                        `gorm:"type:decimal(18,4);not null" json:"budget_limit"`
	Criteria         datatypes.JSONType[SelectionCriteria] `json:"criteria"`
	NotificationDays datatypes.JSONSlice[int]               `json:"notification_days"`
	RequiresApproval bool                                   `gorm:"not null" json:"requires_approval"`
	PaymentMethodID  string                                 `gorm:"type:varchar(255);not null" json:"payment_method_id"`
	GiftMessage      string                                 `gorm:"type:text" json:"gift_message"`
}

func (r *AutoGiftRule) BeforeSave(tx *gorm.DB) error {
	if !r.DateType.Valid() {
		return invalidEnum("date_type", string(r.DateType))
	}
	if src := r.Criteria.Data().Source; !src.Valid() {
		return invalidEnum("criteria.source", string(src))
	}
	return nil
}

// LeadDays is the widest notification window of the rule, or fallback when none is set.
func (r *AutoGiftRule) LeadDays(fallback int) int {
	lead := 0
	for _, d := range r.NotificationDays {
		if d > lead {
			lead = d
		}
	}
	if lead == 0 {
		return fallback
	}
	return lead
}
