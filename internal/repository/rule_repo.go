package repository

import (
	"context"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *model.AutoGiftRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.AutoGiftRule, error)
	FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.AutoGiftRule, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.AutoGiftRule, error)
	ListActive(ctx context.Context) ([]model.AutoGiftRule, error)
	Save(ctx context.Context, rule *model.AutoGiftRule) error
}

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.AutoGiftRule) error {
	return translate(GetDB(ctx, r.db).Create(rule).Error)
}

func (r *ruleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AutoGiftRule, error) {
	var rule model.AutoGiftRule
	if err := GetDB(ctx, r.db).Preload("Event").First(&rule, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rule, nil
}

func (r *ruleRepository) FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.AutoGiftRule, error) {
	var rule model.AutoGiftRule
	if err := GetDB(ctx, r.db).Preload("Event").Where("id = ? AND user_id = ?", id, userID).First(&rule).Error; err != nil {
		return nil, translate(err)
	}
	return &rule, nil
}

func (r *ruleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.AutoGiftRule, error) {
	var rules []model.AutoGiftRule
	err := GetDB(ctx, r.db).Preload("Event").Where("user_id = ?", userID).Order("created_at DESC").Find(&rules).Error
	return rules, translate(err)
}

// ListActive returns active rules together with their (non-deleted) events.
func (r *ruleRepository) ListActive(ctx context.Context) ([]model.AutoGiftRule, error) {
	var rules []model.AutoGiftRule
	err := GetDB(ctx, r.db).Preload("Event").Where("is_active = ?", true).Order("created_at ASC").Find(&rules).Error
	return rules, translate(err)
}

func (r *ruleRepository) Save(ctx context.Context, rule *model.AutoGiftRule) error {
	return translate(GetDB(ctx, r.db).Omit("Event").Save(rule).Error)
}
