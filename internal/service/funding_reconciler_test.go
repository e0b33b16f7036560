package service

import (
	"errors"
	"testing"
	"time"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundingReconciler_BlocksWhatBalanceCannotCover(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	_, first := h.capturedOrder(rule, "2025-12-20", 300)
	_, second := h.capturedOrder(rule, "2025-12-21", 300)
	h.shop.Balance = decimal.NewFromInt(500)

	snap, err := h.reconciler.Reconcile(h.ctx, h.now)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(snap.Outstanding))
	assert.True(t, decimal.NewFromInt(100).Equal(snap.Shortfall))
	assert.Equal(t, 1, snap.Funded)
	assert.Equal(t, 1, snap.Blocked)

	alerts, _, err := h.funding.ListAlerts(h.ctx, true, 1, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	critical := alerts[0]
	assert.Equal(t, model.AlertCriticalBalance, critical.AlertType)
	assert.True(t, decimal.NewFromInt(100).Equal(critical.ShortfallAmount))

	got, err := h.orders.FindByID(h.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingFunded, got.FundingStatus)

	got, err = h.orders.FindByID(h.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingAwaitingFunds, got.FundingStatus)
	require.NotNil(t, got.FundingAlertID)
	assert.Equal(t, critical.ID, *got.FundingAlertID)
	assert.NotEmpty(t, got.HoldReason)

	// A held order stays held while the alert is open, even once money arrives.
	h.shop.Balance = decimal.NewFromInt(900)
	_, err = h.reconciler.Reconcile(h.ctx, h.now.Add(time.Hour))
	require.NoError(t, err)
	got, err = h.orders.FindByID(h.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingAwaitingFunds, got.FundingStatus)

	_, err = h.reconciler.ResolveAlert(h.ctx, uuid.New(), critical.ID, ResolveFundingAlertRequest{Note: "topped up"})
	require.NoError(t, err)
	_, err = h.reconciler.ResolveAlert(h.ctx, uuid.New(), critical.ID, ResolveFundingAlertRequest{})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.reconciler.Reconcile(h.ctx, h.now.Add(2*time.Hour))
	require.NoError(t, err)
	got, err = h.orders.FindByID(h.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingFunded, got.FundingStatus)
	assert.Nil(t, got.FundingAlertID)
}

func TestFundingReconciler_KeepsOneOpenAlertPerType(t *testing.T) {
	h := newHarness(t)
	h.capturedOrder(h.ownRule(), "2025-12-20", 300)
	h.shop.Balance = decimal.NewFromInt(100)

	for i := 0; i < 3; i++ {
		_, err := h.reconciler.Reconcile(h.ctx, h.now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	_, total, err := h.funding.ListAlerts(h.ctx, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestFundingReconciler_WarnsOnLowBalance(t *testing.T) {
	h := newHarness(t)
	_, order := h.capturedOrder(h.ownRule(), "2025-12-20", 100)
	h.shop.Balance = decimal.NewFromInt(150)

	snap, err := h.reconciler.Reconcile(h.ctx, h.now)
	require.NoError(t, err)
	assert.True(t, snap.Shortfall.IsZero())

	alerts, _, err := h.funding.ListAlerts(h.ctx, true, 1, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertLowBalance, alerts[0].AlertType)

	got, err := h.orders.FindByID(h.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingFunded, got.FundingStatus)
}

func TestFundingReconciler_CountsScheduledPayouts(t *testing.T) {
	h := newHarness(t)
	_, order := h.capturedOrder(h.ownRule(), "2025-12-20", 300)
	h.shop.Balance = decimal.NewFromInt(200)
	admin := uuid.New()

	upcoming, err := h.reconciler.ScheduleFunding(h.ctx, admin, ScheduleFundingRequest{
		ExpectedAmount: decimal.NewFromInt(250), ExpectedAt: h.now.Add(24 * time.Hour), Reference: "payout-1",
	})
	require.NoError(t, err)
	overdue, err := h.reconciler.ScheduleFunding(h.ctx, admin, ScheduleFundingRequest{
		ExpectedAmount: decimal.NewFromInt(1000), ExpectedAt: h.now.Add(-24 * time.Hour), Reference: "payout-0",
	})
	require.NoError(t, err)

	snap, err := h.reconciler.Reconcile(h.ctx, h.now)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(250).Equal(snap.ScheduledInflow))
	assert.True(t, decimal.NewFromInt(450).Equal(snap.ProjectedBalance))

	got, err := h.orders.FindByID(h.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FundingFunded, got.FundingStatus)

	late, err := h.funding.FindSchedule(h.ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleLate, late.Status)

	received, err := h.reconciler.RecordPayout(h.ctx, admin, upcoming.ID, RecordPayoutRequest{ActualAmount: decimal.NewFromInt(245)})
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleReceived, received.Status)
	_, err = h.reconciler.RecordPayout(h.ctx, admin, upcoming.ID, RecordPayoutRequest{ActualAmount: decimal.NewFromInt(245)})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFundingReconciler_BalanceErrorFailsRun(t *testing.T) {
	h := newHarness(t)
	h.shop.BalanceErr = errors.New("provider down")

	_, err := h.reconciler.Run(h.ctx, h.now)
	assert.Error(t, err)
}

func TestFundingReconciler_ValidatesSchedules(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconciler.ScheduleFunding(h.ctx, uuid.New(), ScheduleFundingRequest{ExpectedAt: h.now})
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = h.reconciler.ListSchedules(h.ctx, "pending", 1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}
