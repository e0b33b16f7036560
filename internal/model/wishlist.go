package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WishlistItem references a catalog product a user would like to receive.
type WishlistItem struct {
	Base
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductID string          `gorm:"type:varchar(100);not null" json:"product_id"`
	Title     string          `gorm:"type:varchar(255)" json:"title"`
	Category  string          `gorm:"type:varchar(100)" json:"category"`
	Price     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price"`
	Priority  int             `gorm:"not null;default:0" json:"priority"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}
