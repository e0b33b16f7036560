package repository

import (
	"context"
	"time"

	"giftflow/internal/model"
	"giftflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OperatorAlertRepository interface {
	Create(ctx context.Context, alert *model.OperatorAlert) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.OperatorAlert, error)
	List(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.OperatorAlert, int64, error)
	Resolve(ctx context.Context, id, by uuid.UUID, at time.Time) error
	ResolveForExecution(ctx context.Context, executionID, by uuid.UUID, at time.Time) error
}

type operatorAlertRepository struct {
	db *gorm.DB
}

func NewOperatorAlertRepository(db *gorm.DB) OperatorAlertRepository {
	return &operatorAlertRepository{db: db}
}

func (r *operatorAlertRepository) Create(ctx context.Context, alert *model.OperatorAlert) error {
	return translate(GetDB(ctx, r.db).Create(alert).Error)
}

func (r *operatorAlertRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.OperatorAlert, error) {
	var alert model.OperatorAlert
	if err := GetDB(ctx, r.db).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

func (r *operatorAlertRepository) List(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.OperatorAlert, int64, error) {
	var alerts []model.OperatorAlert
	var total int64

	q := GetDB(ctx, r.db).Model(&model.OperatorAlert{})
	if unresolvedOnly {
		q = q.Where("resolved_at IS NULL")
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	if err := q.Order("created_at DESC").Scopes(pagination.Scope(page, limit)).Find(&alerts).Error; err != nil {
		return nil, 0, translate(err)
	}
	return alerts, total, nil
}

func (r *operatorAlertRepository) Resolve(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.OperatorAlert{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{"resolved_at": at, "resolved_by": by}))
}

// ResolveForExecution closes every open alert of an execution once an operator acted on it.
func (r *operatorAlertRepository) ResolveForExecution(ctx context.Context, executionID, by uuid.UUID, at time.Time) error {
	return translate(noHooks(GetDB(ctx, r.db)).Model(&model.OperatorAlert{}).
		Where("execution_id = ? AND resolved_at IS NULL", executionID).
		Updates(map[string]interface{}{"resolved_at": at, "resolved_by": by}).Error)
}
