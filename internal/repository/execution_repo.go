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

// ExecutionFilter narrows execution listings.
type ExecutionFilter struct {
	UserID             *uuid.UUID
	RuleID             *uuid.UUID
	Status             model.ExecutionStatus
	ManualIntervention bool
	Page               int
	Limit              int
}

type ExecutionRepository interface {
	Create(ctx context.Context, exec *model.AutoGiftExecution) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.AutoGiftExecution, error)
	FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.AutoGiftExecution, error)
	ListForOccurrence(ctx context.Context, ruleID uuid.UUID, date model.Date) ([]model.AutoGiftExecution, error)
	ListByRule(ctx context.Context, ruleID uuid.UUID, statuses ...model.ExecutionStatus) ([]model.AutoGiftExecution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]model.AutoGiftExecution, int64, error)
	ListClaimable(ctx context.Context, status model.ExecutionStatus, dueBy *model.Date, now time.Time, limit int) ([]model.AutoGiftExecution, error)
	Claim(ctx context.Context, id uuid.UUID, status model.ExecutionStatus, worker string, until, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	Transition(ctx context.Context, id uuid.UUID, from, to model.ExecutionStatus, updates map[string]interface{}) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

// Create inserts a new execution. A second live execution for the same occurrence
// violates the active_key unique index and yields ErrDuplicate.
func (r *executionRepository) Create(ctx context.Context, exec *model.AutoGiftExecution) error {
	if exec.ActiveKey == nil && !exec.Status.IsTerminal() {
		key := model.OccurrenceKey(exec.RuleID, exec.ExecutionDate)
		exec.ActiveKey = &key
	}
	if exec.StatusChangedAt.IsZero() {
		exec.StatusChangedAt = time.Now().UTC()
	}
	return translate(GetDB(ctx, r.db).Omit("Rule").Create(exec).Error)
}

func (r *executionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AutoGiftExecution, error) {
	var exec model.AutoGiftExecution
	if err := GetDB(ctx, r.db).Preload("Rule").Preload("Rule.Event").First(&exec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &exec, nil
}

func (r *executionRepository) FindForUser(ctx context.Context, userID, id uuid.UUID) (*model.AutoGiftExecution, error) {
	var exec model.AutoGiftExecution
	if err := GetDB(ctx, r.db).Preload("Rule").Where("id = ? AND user_id = ?", id, userID).First(&exec).Error; err != nil {
		return nil, translate(err)
	}
	return &exec, nil
}

func (r *executionRepository) ListForOccurrence(ctx context.Context, ruleID uuid.UUID, date model.Date) ([]model.AutoGiftExecution, error) {
	var execs []model.AutoGiftExecution
	err := GetDB(ctx, r.db).
		Where("rule_id = ? AND execution_date = ?", ruleID, date).
		Order("created_at ASC").
		Find(&execs).Error
	return execs, translate(err)
}

func (r *executionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID, statuses ...model.ExecutionStatus) ([]model.AutoGiftExecution, error) {
	var execs []model.AutoGiftExecution
	q := GetDB(ctx, r.db).Where("rule_id = ?", ruleID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("execution_date ASC").Find(&execs).Error
	return execs, translate(err)
}

func (r *executionRepository) List(ctx context.Context, filter ExecutionFilter) ([]model.AutoGiftExecution, int64, error) {
	var execs []model.AutoGiftExecution
	var total int64

	q := GetDB(ctx, r.db).Model(&model.AutoGiftExecution{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.RuleID != nil {
		q = q.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ManualIntervention {
		q = q.Where("requires_manual_intervention = ?", true)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	if err := q.Order("execution_date DESC, created_at DESC").
		Scopes(pagination.Scope(filter.Page, filter.Limit)).
		Find(&execs).Error; err != nil {
		return nil, 0, translate(err)
	}
	return execs, total, nil
}

// ListClaimable returns executions in status whose lease is free, optionally only those
// with an execution date on or before dueBy, oldest occasion first.
func (r *executionRepository) ListClaimable(ctx context.Context, status model.ExecutionStatus, dueBy *model.Date, now time.Time, limit int) ([]model.AutoGiftExecution, error) {
	var execs []model.AutoGiftExecution
	q := GetDB(ctx, r.db).
		Preload("Rule").
		Preload("Rule.Event").
		Where("status = ?", status).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now)
	if dueBy != nil {
		q = q.Where("execution_date <= ?", *dueBy)
	}
	err := q.Order("execution_date ASC, created_at ASC").Limit(limit).Find(&execs).Error
	return execs, translate(err)
}

// Claim leases the execution to worker until the given time. It reports false when the
// execution left status or another worker holds an unexpired lease.
func (r *executionRepository) Claim(ctx context.Context, id uuid.UUID, status model.ExecutionStatus, worker string, until, now time.Time) (bool, error) {
	res := noHooks(GetDB(ctx, r.db)).Model(&model.AutoGiftExecution{}).
		Where("id = ? AND status = ?", id, status).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]interface{}{
			"claimed_by":    worker,
			"claimed_until": until,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *executionRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	return translate(noHooks(GetDB(ctx, r.db)).Model(&model.AutoGiftExecution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"claimed_by": nil, "claimed_until": nil}).Error)
}

// Transition moves the execution from one status to another as a compare-and-swap.
// It returns ErrInvalidTransition for moves outside the state machine and ErrStaleState
// when the stored status is no longer from. The lease is released and, for retriggerable
// terminal states, the occurrence slot is freed.
func (r *executionRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.ExecutionStatus, updates map[string]interface{}) error {
	if !to.Valid() || !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	values := map[string]interface{}{
		"status":            to,
		"status_changed_at": time.Now().UTC(),
		"claimed_by":        nil,
		"claimed_until":     nil,
	}
	if to.Retriggerable() {
		values["active_key"] = nil
	}
	for k, v := range updates {
		values[k] = v
	}
	res := noHooks(GetDB(ctx, r.db)).Model(&model.AutoGiftExecution{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return casResult(res)
}

// Update changes non-status columns.
func (r *executionRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if _, ok := updates["status"]; ok {
		return fmt.Errorf("%w: status must change through Transition", ErrInvalidTransition)
	}
	return casResult(noHooks(GetDB(ctx, r.db)).Model(&model.AutoGiftExecution{}).Where("id = ?", id).Updates(updates))
}
