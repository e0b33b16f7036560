package repository

import (
	"context"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OnboardingRepository interface {
	FindOrCreate(ctx context.Context, userID uuid.UUID) (*model.OnboardingProgress, error)
	Save(ctx context.Context, progress *model.OnboardingProgress) error
}

type onboardingRepository struct {
	db *gorm.DB
}

func NewOnboardingRepository(db *gorm.DB) OnboardingRepository {
	return &onboardingRepository{db: db}
}

// FindOrCreate returns the user's progress row, creating it at the first step.
func (r *onboardingRepository) FindOrCreate(ctx context.Context, userID uuid.UUID) (*model.OnboardingProgress, error) {
	db := GetDB(ctx, r.db)
	fresh := &model.OnboardingProgress{UserID: userID, Step: model.StepProfile}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, translate(err)
	}
	var progress model.OnboardingProgress
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&progress).Error; err != nil {
		return nil, translate(err)
	}
	return &progress, nil
}

func (r *onboardingRepository) Save(ctx context.Context, progress *model.OnboardingProgress) error {
	return translate(GetDB(ctx, r.db).Save(progress).Error)
}
