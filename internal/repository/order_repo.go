package repository

import (
	"context"
	"fmt"
	"time"

	"giftflow/internal/model"
	"giftflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderFilter narrows order listings for Trunkline.
type OrderFilter struct {
	Status        model.OrderStatus
	FundingStatus model.FundingStatus
	Page          int
	Limit         int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.GiftOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.GiftOrder, error)
	FindByExecutionID(ctx context.Context, executionID uuid.UUID) (*model.GiftOrder, error)
	List(ctx context.Context, filter OrderFilter) ([]model.GiftOrder, int64, error)
	ListOutstanding(ctx context.Context) ([]model.GiftOrder, error)
	ListSubmittable(ctx context.Context, today model.Date, now time.Time, limit int) ([]model.GiftOrder, error)
	ListByFundingAlert(ctx context.Context, alertID uuid.UUID) ([]model.GiftOrder, error)
	Claim(ctx context.Context, id uuid.UUID, worker string, until, now time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, updates map[string]interface{}) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	ClearFundingHolds(ctx context.Context, alertID uuid.UUID) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.GiftOrder) error {
	return translate(GetDB(ctx, r.db).Create(order).Error)
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.GiftOrder, error) {
	var order model.GiftOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) FindByExecutionID(ctx context.Context, executionID uuid.UUID) (*model.GiftOrder, error) {
	var order model.GiftOrder
	if err := GetDB(ctx, r.db).First(&order, "execution_id = ?", executionID).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.GiftOrder, int64, error) {
	var orders []model.GiftOrder
	var total int64

	q := GetDB(ctx, r.db).Model(&model.GiftOrder{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.FundingStatus != "" {
		q = q.Where("funding_status = ?", filter.FundingStatus)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	if err := q.Order("delivery_date ASC, created_at ASC").
		Scopes(pagination.Scope(filter.Page, filter.Limit)).
		Find(&orders).Error; err != nil {
		return nil, 0, translate(err)
	}
	return orders, total, nil
}

// ListOutstanding returns captured orders that still need fulfillment funds,
// earliest delivery first.
func (r *orderRepository) ListOutstanding(ctx context.Context) ([]model.GiftOrder, error) {
	var orders []model.GiftOrder
	err := GetDB(ctx, r.db).
		Where("status = ? AND submitted_at IS NULL", model.OrderPaymentConfirmed).
		Order("delivery_date ASC, created_at ASC").
		Find(&orders).Error
	return orders, translate(err)
}

// ListSubmittable returns funded, captured orders due for delivery by today with a free lease.
func (r *orderRepository) ListSubmittable(ctx context.Context, today model.Date, now time.Time, limit int) ([]model.GiftOrder, error) {
	var orders []model.GiftOrder
	err := GetDB(ctx, r.db).
		Where("status = ? AND funding_status = ?", model.OrderPaymentConfirmed, model.FundingFunded).
		Where("delivery_date <= ?", today).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Order("delivery_date ASC, created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, translate(err)
}

func (r *orderRepository) ListByFundingAlert(ctx context.Context, alertID uuid.UUID) ([]model.GiftOrder, error) {
	var orders []model.GiftOrder
	err := GetDB(ctx, r.db).Where("funding_alert_id = ?", alertID).Find(&orders).Error
	return orders, translate(err)
}

func (r *orderRepository) Claim(ctx context.Context, id uuid.UUID, worker string, until, now time.Time) (bool, error) {
	res := noHooks(GetDB(ctx, r.db)).Model(&model.GiftOrder{}).
		Where("id = ? AND status = ?", id, model.OrderPaymentConfirmed).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]interface{}{"claimed_by": worker, "claimed_until": until})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionStatus is a compare-and-swap on the order status; the lease is released.
func (r *orderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, updates map[string]interface{}) error {
	if !to.Valid() {
		return fmt.Errorf("%w: order status %q", ErrInvalidTransition, to)
	}
	values := map[string]interface{}{
		"status":        to,
		"claimed_by":    nil,
		"claimed_until": nil,
	}
	for k, v := range updates {
		values[k] = v
	}
	if fs, ok := values["funding_status"].(model.FundingStatus); ok && !fs.Valid() {
		return fmt.Errorf("%w: funding status %q", ErrInvalidTransition, fs)
	}
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.GiftOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values))
}

func (r *orderRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if _, ok := updates["status"]; ok {
		return fmt.Errorf("%w: status must change through TransitionStatus", ErrInvalidTransition)
	}
	if fs, ok := updates["funding_status"].(model.FundingStatus); ok && !fs.Valid() {
		return fmt.Errorf("%w: funding status %q", ErrInvalidTransition, fs)
	}
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.GiftOrder{}).Where("id = ?", id).Updates(updates))
}

// ClearFundingHolds detaches orders from a resolved funding alert so the next
// reconciliation run re-evaluates them.
func (r *orderRepository) ClearFundingHolds(ctx context.Context, alertID uuid.UUID) (int64, error) {
	res := noHooks(GetDB(ctx, r.db)).Model(&model.GiftOrder{}).
		Where("funding_alert_id = ?", alertID).
		Updates(map[string]interface{}{"funding_alert_id": nil, "hold_reason": ""})
	return res.RowsAffected, translate(res.Error)
}
