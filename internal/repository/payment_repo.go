package repository

import (
	"context"
	"fmt"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, auth *model.PaymentAuthorization) error
	FindByExecutionID(ctx context.Context, executionID uuid.UUID) (*model.PaymentAuthorization, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AuthorizationStatus, updates map[string]interface{}) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, auth *model.PaymentAuthorization) error {
	return translate(GetDB(ctx, r.db).Create(auth).Error)
}

func (r *paymentRepository) FindByExecutionID(ctx context.Context, executionID uuid.UUID) (*model.PaymentAuthorization, error) {
	var auth model.PaymentAuthorization
	if err := GetDB(ctx, r.db).First(&auth, "execution_id = ?", executionID).Error; err != nil {
		return nil, translate(err)
	}
	return &auth, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AuthorizationStatus, updates map[string]interface{}) error {
	if !to.Valid() {
		return fmt.Errorf("%w: authorization status %q", ErrInvalidTransition, to)
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.PaymentAuthorization{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values))
}
