package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/logger"
	"giftflow/internal/metrics"
	"giftflow/internal/model"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const JobReconcileFunding = "reconcile-funding"

// --- DTOs ---

type ScheduleFundingRequest struct {
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	ExpectedAt     time.Time       `json:"expected_at" binding:"required"`
	Reference      string          `json:"reference"`
	Notes          string          `json:"notes"`
}

type RecordPayoutRequest struct {
	ActualAmount decimal.Decimal `json:"actual_amount"`
	ReceivedAt   *time.Time      `json:"received_at"`
}

type ResolveFundingAlertRequest struct {
	Note string `json:"note"`
}

// FundingSnapshot is what one reconciliation run saw.
type FundingSnapshot struct {
	Balance          decimal.Decimal `json:"balance"`
	ScheduledInflow  decimal.Decimal `json:"scheduled_inflow"`
	ProjectedBalance decimal.Decimal `json:"projected_balance"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	Shortfall        decimal.Decimal `json:"shortfall"`
	Funded           int             `json:"funded"`
	Blocked          int             `json:"blocked"`
}

// FundingReconciler compares the fulfillment account's projected balance with orders
// waiting for submission and blocks what the account cannot pay for.
type FundingReconciler struct {
	stage
	orders              repository.OrderRepository
	funding             repository.FundingRepository
	balance             fulfillment.BalanceSource
	hub                 Broadcaster
	lowBalanceThreshold decimal.Decimal
	horizonDays         int
	now                 func() time.Time
}

func NewFundingReconciler(
	tx repository.TransactionManager,
	executions repository.ExecutionRepository,
	orders repository.OrderRepository,
	funding repository.FundingRepository,
	audit repository.AuditRepository,
	balance fulfillment.BalanceSource,
	hub Broadcaster,
	log *logrus.Logger,
	lowBalanceThreshold decimal.Decimal,
	horizonDays int,
) *FundingReconciler {
	return &FundingReconciler{
		stage:               newStage(tx, executions, audit, log),
		orders:              orders,
		funding:             funding,
		balance:             balance,
		hub:                 hub,
		lowBalanceThreshold: lowBalanceThreshold,
		horizonDays:         horizonDays,
		now:                 utcNow,
	}
}

func (r *FundingReconciler) Name() string { return JobReconcileFunding }

func (r *FundingReconciler) Run(ctx context.Context, now time.Time) (scheduler.Result, error) {
	snap, err := r.Reconcile(ctx, now)
	if err != nil {
		return scheduler.Result{}, err
	}
	return scheduler.Result{
		Processed: snap.Funded + snap.Blocked,
		Succeeded: snap.Funded,
		Skipped:   snap.Blocked,
	}, nil
}

// Reconcile funds outstanding orders greedily by delivery date and raises alerts for
// the rest.
func (r *FundingReconciler) Reconcile(ctx context.Context, now time.Time) (FundingSnapshot, error) {
	var snap FundingSnapshot
	balance, err := r.balance.AccountBalance(ctx)
	if err != nil {
		logger.LogError(r.logger, "funding_reconciler", "Reconcile", "read balance", nil, err)
		return snap, fmt.Errorf("reading fulfillment balance: %w", err)
	}
	snap.Balance = balance
	today := model.DateOf(now)
	horizon := today.AddDays(r.horizonDays).Time().Add(24*time.Hour - time.Nanosecond)

	var raised []*model.FundingAlert
	err = r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		inflow, nextPayout, err := r.scheduledInflow(txCtx, now, horizon)
		if err != nil {
			return err
		}
		snap.ScheduledInflow = inflow
		snap.ProjectedBalance = balance.Add(inflow)

		outstanding, err := r.orders.ListOutstanding(txCtx)
		if err != nil {
			return err
		}

		remaining := snap.ProjectedBalance
		var blocked []model.GiftOrder
		for _, o := range outstanding {
			snap.Outstanding = snap.Outstanding.Add(o.TotalAmount)
			if o.FundingAlertID != nil {
				blocked = append(blocked, o)
				continue
			}
			if o.TotalAmount.LessThanOrEqual(remaining) {
				remaining = remaining.Sub(o.TotalAmount)
				snap.Funded++
				if o.FundingStatus != model.FundingFunded {
					if err := r.orders.Update(txCtx, o.ID, map[string]interface{}{
						"funding_status": model.FundingFunded,
						"hold_reason":    "",
					}); err != nil {
						return err
					}
				}
				continue
			}
			blocked = append(blocked, o)
		}
		snap.Blocked = len(blocked)
		if snap.Outstanding.GreaterThan(snap.ProjectedBalance) {
			snap.Shortfall = snap.Outstanding.Sub(snap.ProjectedBalance)
		}

		var critical *model.FundingAlert
		if snap.Shortfall.IsPositive() {
			critical, err = r.upsertAlert(txCtx, model.AlertCriticalBalance, snap, len(blocked),
				fmt.Sprintf("Projected balance %s cannot cover %s of waiting orders (short %s).",
					snap.ProjectedBalance.StringFixed(2), snap.Outstanding.StringFixed(2), snap.Shortfall.StringFixed(2)))
			if err != nil {
				return err
			}
			raised = append(raised, critical)
		} else if remaining.LessThan(r.lowBalanceThreshold) {
			low, err := r.upsertAlert(txCtx, model.AlertLowBalance, snap, 0,
				fmt.Sprintf("Balance after funding waiting orders is %s, below %s.",
					remaining.StringFixed(2), r.lowBalanceThreshold.StringFixed(2)))
			if err != nil {
				return err
			}
			raised = append(raised, low)
		}

		var urgent int
		for _, o := range blocked {
			if !o.DeliveryDate.After(today.AddDays(1)) {
				urgent++
			}
		}
		if urgent > 0 {
			waiting, err := r.upsertAlert(txCtx, model.AlertPendingOrdersWaiting, snap, urgent,
				fmt.Sprintf("%d blocked order(s) are due for delivery within a day.", urgent))
			if err != nil {
				return err
			}
			raised = append(raised, waiting)
		}

		return r.hold(txCtx, blocked, critical, nextPayout, snap)
	})
	if err != nil {
		return snap, err
	}

	shortfall, _ := snap.Shortfall.Float64()
	metrics.FundingShortfall.Set(shortfall)
	r.logger.WithFields(logrus.Fields{
		"balance":     snap.Balance.StringFixed(2),
		"projected":   snap.ProjectedBalance.StringFixed(2),
		"outstanding": snap.Outstanding.StringFixed(2),
		"funded":      snap.Funded,
		"blocked":     snap.Blocked,
	}).Info("funding reconciled")
	if r.hub != nil {
		for _, a := range raised {
			r.hub.BroadcastJSON(map[string]interface{}{"type": "funding_alert", "alert": a})
		}
	}
	return snap, nil
}

// scheduledInflow sums payouts expected by the horizon, marking overdue ones late.
// It also returns the earliest payout still expected, if any.
func (r *FundingReconciler) scheduledInflow(ctx context.Context, now, horizon time.Time) (decimal.Decimal, *time.Time, error) {
	schedules, err := r.funding.ListPendingSchedules(ctx)
	if err != nil {
		return decimal.Zero, nil, err
	}
	inflow := decimal.Zero
	var next *time.Time
	for _, s := range schedules {
		if s.Status == model.ScheduleLate {
			continue
		}
		if s.ExpectedAt.Before(now) {
			if err := r.funding.UpdateScheduleStatus(ctx, s.ID, s.Status, model.ScheduleLate, nil); err != nil &&
				!errors.Is(err, repository.ErrStaleState) {
				return decimal.Zero, nil, err
			}
			continue
		}
		if next == nil || s.ExpectedAt.Before(*next) {
			at := s.ExpectedAt
			next = &at
		}
		if !s.ExpectedAt.After(horizon) {
			inflow = inflow.Add(s.ExpectedAmount)
		}
	}
	return inflow, next, nil
}

// upsertAlert keeps one unresolved alert per type, refreshing its figures.
func (r *FundingReconciler) upsertAlert(ctx context.Context, alertType model.FundingAlertType, snap FundingSnapshot, blocked int, message string) (*model.FundingAlert, error) {
	existing, err := r.funding.FindUnresolvedAlert(ctx, alertType)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{
			"available_balance":  snap.ProjectedBalance,
			"outstanding_amount": snap.Outstanding,
			"shortfall_amount":   snap.Shortfall,
			"orders_blocked":     blocked,
			"message":            message,
		}
		if err := r.funding.UpdateAlert(ctx, existing.ID, updates); err != nil {
			return nil, err
		}
		existing.AvailableBalance = snap.ProjectedBalance
		existing.OutstandingAmount = snap.Outstanding
		existing.ShortfallAmount = snap.Shortfall
		existing.OrdersBlocked = blocked
		existing.Message = message
		return existing, nil
	}

	alert := &model.FundingAlert{
		AlertType:         alertType,
		AvailableBalance:  snap.ProjectedBalance,
		OutstandingAmount: snap.Outstanding,
		ShortfallAmount:   snap.Shortfall,
		OrdersBlocked:     blocked,
		Message:           message,
	}
	if err := r.funding.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"alert_id": alert.ID, "alert_type": alertType}).Warn(message)
	return alert, nil
}

// hold marks blocked orders as awaiting funds and links newly blocked ones to the
// critical alert so they stay held until an operator resolves it.
func (r *FundingReconciler) hold(ctx context.Context, blocked []model.GiftOrder, critical *model.FundingAlert, nextPayout *time.Time, snap FundingSnapshot) error {
	for _, o := range blocked {
		if o.FundingAlertID != nil {
			continue
		}
		updates := map[string]interface{}{
			"funding_status": model.FundingAwaitingFunds,
			"hold_reason":    fmt.Sprintf("insufficient fulfillment balance (short %s)", snap.Shortfall.StringFixed(2)),
		}
		if critical != nil {
			updates["funding_alert_id"] = critical.ID
		}
		if nextPayout != nil {
			updates["expected_funding_at"] = *nextPayout
		}
		if err := r.orders.Update(ctx, o.ID, updates); err != nil {
			return err
		}
	}
	return nil
}

// ResolveAlert closes a funding alert and releases the orders it held for the next run.
func (r *FundingReconciler) ResolveAlert(ctx context.Context, adminID, alertID uuid.UUID, req ResolveFundingAlertRequest) (*model.FundingAlert, error) {
	var alert *model.FundingAlert
	err := r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.funding.FindAlert(txCtx, alertID); err != nil {
			return mapRepoError("funding alert", err)
		}
		if err := r.funding.ResolveAlert(txCtx, alertID, adminID, strings.TrimSpace(req.Note), r.now()); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return conflictError("funding alert is already resolved")
			}
			return err
		}
		released, err := r.orders.ClearFundingHolds(txCtx, alertID)
		if err != nil {
			return err
		}
		if err := r.audit.Record(txCtx, &adminID, model.ActionResolveFunding, alertID.String(), "funding_alert",
			map[string]interface{}{"released_orders": released, "note": req.Note}); err != nil {
			return err
		}
		alert, err = r.funding.FindAlert(txCtx, alertID)
		return err
	})
	return alert, err
}

func (r *FundingReconciler) ScheduleFunding(ctx context.Context, adminID uuid.UUID, req ScheduleFundingRequest) (*model.FundingSchedule, error) {
	if !req.ExpectedAmount.IsPositive() {
		return nil, validationError("expected_amount must be greater than zero")
	}
	if req.ExpectedAt.IsZero() {
		return nil, validationError("expected_at is required")
	}
	schedule := &model.FundingSchedule{
		ExpectedAmount: req.ExpectedAmount,
		ExpectedAt:     req.ExpectedAt.UTC(),
		Status:         model.ScheduleScheduled,
		Reference:      strings.TrimSpace(req.Reference),
		Notes:          strings.TrimSpace(req.Notes),
	}
	err := r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := r.funding.CreateSchedule(txCtx, schedule); err != nil {
			return err
		}
		return r.audit.Record(txCtx, &adminID, model.ActionScheduleFunding, schedule.ID.String(), schedule.Reference,
			map[string]interface{}{"expected_amount": schedule.ExpectedAmount, "expected_at": schedule.ExpectedAt})
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// RecordPayout marks an expected payout as received.
func (r *FundingReconciler) RecordPayout(ctx context.Context, adminID, scheduleID uuid.UUID, req RecordPayoutRequest) (*model.FundingSchedule, error) {
	if req.ActualAmount.IsNegative() {
		return nil, validationError("actual_amount must not be negative")
	}
	receivedAt := r.now()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	var schedule *model.FundingSchedule
	err := r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		schedule, err = r.funding.FindSchedule(txCtx, scheduleID)
		if err != nil {
			return mapRepoError("funding schedule", err)
		}
		if schedule.Status == model.ScheduleReceived {
			return conflictError("payout already recorded")
		}
		amount := req.ActualAmount
		if err := r.funding.UpdateScheduleStatus(txCtx, schedule.ID, schedule.Status, model.ScheduleReceived, map[string]interface{}{
			"actual_amount": amount,
			"received_at":   receivedAt,
		}); err != nil {
			return mapRepoError("funding schedule", err)
		}
		schedule.Status = model.ScheduleReceived
		schedule.ActualAmount = &amount
		schedule.ReceivedAt = &receivedAt
		return r.audit.Record(txCtx, &adminID, model.ActionRecordPayout, schedule.ID.String(), schedule.Reference,
			map[string]interface{}{"actual_amount": amount})
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func (r *FundingReconciler) ListSchedules(ctx context.Context, status string, page, limit int) ([]model.FundingSchedule, int64, error) {
	page, limit = normalizePage(page, limit)
	st := model.FundingScheduleStatus(status)
	if status != "" && !st.Valid() {
		return nil, 0, validationError("unknown schedule status %q", status)
	}
	return r.funding.ListSchedules(ctx, st, page, limit)
}

func (r *FundingReconciler) ListAlerts(ctx context.Context, unresolvedOnly bool, page, limit int) ([]model.FundingAlert, int64, error) {
	page, limit = normalizePage(page, limit)
	return r.funding.ListAlerts(ctx, unresolvedOnly, page, limit)
}
