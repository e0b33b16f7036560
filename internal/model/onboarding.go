package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OnboardingStep is a step of the first-run flow, persisted per user.
type OnboardingStep string

const (
	StepProfile     OnboardingStep = "profile"
	StepInterests   OnboardingStep = "interests"
	StepConnections OnboardingStep = "connections"
	StepWishlist    OnboardingStep = "wishlist"
	StepCompleted   OnboardingStep = "completed"
)

var onboardingOrder = []OnboardingStep{StepProfile, StepInterests, StepConnections, StepWishlist, StepCompleted}

func (s OnboardingStep) Valid() bool {
	for _, step := range onboardingOrder {
		if step == s {
			return true
		}
	}
	return false
}

// Next returns the step after s; completed is its own successor.
func (s OnboardingStep) Next() OnboardingStep {
	for i, step := range onboardingOrder {
		if step == s && i+1 < len(onboardingOrder) {
			return onboardingOrder[i+1]
		}
	}
	return StepCompleted
}

type OnboardingProgress struct {
	Base
	UserID       uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Step         OnboardingStep                      `gorm:"type:varchar(20);not null" json:"step"`
	SkippedSteps datatypes.JSONSlice[OnboardingStep] `json:"skipped_steps"`
	CompletedAt  *time.Time                          `json:"completed_at"`
}

func (p *OnboardingProgress) BeforeSave(tx *gorm.DB) error {
	if !p.Step.Valid() {
		return invalidEnum("step", string(p.Step))
	}
	return nil
}
