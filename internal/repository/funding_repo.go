package repository

import (
	"context"
	"fmt"
	"time"

	"giftflow/internal/model"
	"giftflow/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FundingRepository interface {
	CreateSchedule(ctx context.Context, schedule *model.FundingSchedule) error
	FindSchedule(ctx context.Context, id uuid.UUID) (*model.FundingSchedule, error)
	ListSchedules(ctx context.Context, status model.FundingScheduleStatus, page, limit int) ([]model.FundingSchedule, int64, error)
	ListPendingSchedules(ctx context.Context) ([]model.FundingSchedule, error)
	UpdateScheduleStatus(ctx context.Context, id uuid.UUID, from, to model.FundingScheduleStatus, updates map[string]interface{}) error

	CreateAlert(ctx context.Context, alert *model.FundingAlert) error
	FindAlert(ctx context.Context, id uuid.UUID) (*model.FundingAlert, error)
	FindUnresolvedAlert(ctx context.Context, alertType model.FundingAlertType) (*model.FundingAlert, error)
	ListAlerts(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.FundingAlert, int64, error)
	UpdateAlert(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	ResolveAlert(ctx context.Context, id uuid.UUID, by uuid.UUID, note string, at time.Time) error
}

type fundingRepository struct {
	db *gorm.DB
}

func NewFundingRepository(db *gorm.DB) FundingRepository {
	return &fundingRepository{db: db}
}

func (r *fundingRepository) CreateSchedule(ctx context.Context, schedule *model.FundingSchedule) error {
	return translate(GetDB(ctx, r.db).Create(schedule).Error)
}

func (r *fundingRepository) FindSchedule(ctx context.Context, id uuid.UUID) (*model.FundingSchedule, error) {
	var schedule model.FundingSchedule
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&schedule, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &schedule, nil
}

func (r *fundingRepository) ListSchedules(ctx context.Context, status model.FundingScheduleStatus, page, limit int) ([]model.FundingSchedule, int64, error) {
	var schedules []model.FundingSchedule
	var total int64

	q := GetDB(ctx, r.db).Model(&model.FundingSchedule{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	if err := q.Order("expected_at ASC").Scopes(pagination.Scope(page, limit)).Find(&schedules).Error; err != nil {
		return nil, 0, translate(err)
	}
	return schedules, total, nil
}

// ListPendingSchedules returns payouts not yet received, scheduled or late.
func (r *fundingRepository) ListPendingSchedules(ctx context.Context) ([]model.FundingSchedule, error) {
	var schedules []model.FundingSchedule
	err := GetDB(ctx, r.db).
		Where("status IN ?", []model.FundingScheduleStatus{model.ScheduleScheduled, model.ScheduleLate}).
		Order("expected_at ASC").
		Find(&schedules).Error
	return schedules, translate(err)
}

func (r *fundingRepository) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, from, to model.FundingScheduleStatus, updates map[string]interface{}) error {
	if !to.Valid() {
		return fmt.Errorf("%w: schedule status %q", ErrInvalidTransition, to)
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.FundingSchedule{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values))
}

func (r *fundingRepository) CreateAlert(ctx context.Context, alert *model.FundingAlert) error {
	return translate(GetDB(ctx, r.db).Create(alert).Error)
}

func (r *fundingRepository) FindAlert(ctx context.Context, id uuid.UUID) (*model.FundingAlert, error) {
	var alert model.FundingAlert
	if err := GetDB(ctx, r.db).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

func (r *fundingRepository) FindUnresolvedAlert(ctx context.Context, alertType model.FundingAlertType) (*model.FundingAlert, error) {
	var alert model.FundingAlert
	if err := GetDB(ctx, r.db).
		Where("alert_type = ? AND resolved_at IS NULL", alertType).
		Order("created_at DESC").
		First(&alert).Error; err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

func (r *fundingRepository) ListAlerts(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.FundingAlert, int64, error) {
	var alerts []model.FundingAlert
	var total int64

	q := GetDB(ctx, r.db).Model(&model.FundingAlert{})
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

func (r *fundingRepository) UpdateAlert(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.FundingAlert{}).Where("id = ?", id).Updates(updates))
}

// ResolveAlert closes an unresolved alert; a second resolution gets ErrStaleState.
func (r *fundingRepository) ResolveAlert(ctx context.Context, id uuid.UUID, by uuid.UUID, note string, at time.Time) error {
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.FundingAlert{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at":     at,
			"resolved_by":     by,
			"resolution_note": note,
		}))
}
