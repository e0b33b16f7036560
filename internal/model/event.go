package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DateType classifies an occasion
type DateType string

const (
	DateTypeBirthday    DateType = "birthday"
	DateTypeAnniversary DateType = "anniversary"
	DateTypeHoliday     DateType = "holiday"
	DateTypeCustom      DateType = "custom"
)

func (t DateType) Valid() bool {
	switch t {
	case DateTypeBirthday, DateTypeAnniversary, DateTypeHoliday, DateTypeCustom:
		return true
	}
	return false
}

// ShippingAddress is snapshotted onto orders at authorization time.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a ShippingAddress) Complete() bool {
	return a.Line1 != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

// GiftEvent is an occasion held in the Event Store.
type GiftEvent struct {
	Base
	UserID          uuid.UUID                            `gorm:"type:uuid;not null;index" json:"user_id"`
	RecipientUserID *uuid.UUID                           `gorm:"type:uuid;index" json:"recipient_user_id"`
	RecipientEmail  string                               `gorm:"type:varchar(255)" json:"recipient_email"`
	RecipientName   string                               `gorm:"type:varchar(255)" json:"recipient_name"`
	DateType        DateType                             `gorm:"type:varchar(20);not null" json:"date_type"`
	EventDate       Date                                 `gorm:"type:varchar(10);not null" json:"event_date"`
	Recurring       bool                                 `gorm:"not null" json:"recurring"`
	ShippingAddress datatypes.JSONType[ShippingAddress] `json:"shipping_address"`
	DeletedAt       gorm.DeletedAt                       `gorm:"index" json:"-"`
}

func (e *GiftEvent) BeforeSave(tx *gorm.DB) error {
	if !e.DateType.Valid() {
		return invalidEnum("date_type", string(e.DateType))
	}
	return nil
}

// NextOccurrence returns the first occurrence of the event on or after from.
// Recurring events repeat annually and a Feb 29 date falls on Feb 28 in non-leap years.
// A one-off event returns its own date, and ok is false once that date has passed.
func (e *GiftEvent) NextOccurrence(from Date) (Date, bool) {
	base := e.EventDate.Time()
	if base.IsZero() {
		return "", false
	}
	if !e.Recurring {
		return e.EventDate, !e.EventDate.Before(from)
	}
	start := from.Time()
	for year := start.Year(); year <= start.Year()+1; year++ {
		candidate := annualDate(year, base.Month(), base.Day())
		if !candidate.Before(start) {
			return DateOf(candidate), true
		}
	}
	return "", false
}

func annualDate(year int, month time.Month, day int) time.Time {
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
