package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/model"
	"giftflow/internal/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedOrder drives an execution through authorization and capture.
func (h *harness) capturedOrder(rule *model.AutoGiftRule, date string, price int64) (*model.AutoGiftExecution, *model.GiftOrder) {
	h.t.Helper()
	exec := h.authorizedExecution(rule, date, price)
	_, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(h.t, err)
	require.Equal(h.t, model.ExecPaymentConfirmed, h.reload(exec.ID).Status)
	order, err := h.orders.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(h.t, err)
	return exec, order
}

// fundedOrder is a captured order the reconciler has released for submission.
func (h *harness) fundedOrder(date string) (*model.AutoGiftExecution, *model.GiftOrder) {
	h.t.Helper()
	exec, order := h.capturedOrder(h.ownRule(), date, 40)
	h.shop.Balance = decimal.NewFromInt(1000)
	_, err := h.reconciler.Reconcile(h.ctx, h.now)
	require.NoError(h.t, err)
	order, err = h.orders.FindByID(h.ctx, order.ID)
	require.NoError(h.t, err)
	require.Equal(h.t, model.FundingFunded, order.FundingStatus)
	return exec, order
}

func day(d int) time.Time {
	return time.Date(2025, 12, d, 7, 0, 0, 0, time.UTC)
}

func TestSubmissionStage_SubmitsOnOccasionDate(t *testing.T) {
	h := newHarness(t)
	exec, order := h.fundedOrder("2025-12-20")

	res, err := h.submission.Run(h.ctx, day(19))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	res, err = h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	got, err := h.orders.FindByID(h.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderProcessing, got.Status)
	assert.NotEmpty(t, got.VendorOrderID)
	require.NotNil(t, got.SubmittedAt)
	assert.Equal(t, model.ExecProcessing, h.reload(exec.ID).Status)
	assert.Contains(t, h.notes.Kinds(), notify.KindOrderProcessing)
	assert.Equal(t, 1, h.shop.Orders())

	// Nothing is resubmitted on the next tick.
	res, err = h.submission.Run(h.ctx, day(20).Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, h.shop.SubmitCalls)
}

func TestSubmissionStage_WaitsForFunding(t *testing.T) {
	h := newHarness(t)
	_, order := h.capturedOrder(h.ownRule(), "2025-12-20", 40)
	require.Equal(t, model.FundingFundsAllocated, order.FundingStatus)

	res, err := h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, h.shop.SubmitCalls)
}

func TestSubmissionStage_ResolvesAmbiguousSubmission(t *testing.T) {
	h := newHarness(t)
	exec, order := h.fundedOrder("2025-12-20")
	h.shop.SubmitErr = errors.New("ignored")
	h.shop.SubmitLostResponse = true

	_, err := h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)

	got, err := h.orders.FindByID(h.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderProcessing, got.Status)
	assert.Equal(t, model.ExecProcessing, h.reload(exec.ID).Status)
	assert.Equal(t, 1, h.shop.Orders())
}

func TestSubmissionStage_RejectedOrderNeedsOperator(t *testing.T) {
	h := newHarness(t)
	exec, order := h.fundedOrder("2025-12-20")
	h.shop.SubmitErr = fmt.Errorf("%w: address undeliverable", fulfillment.ErrRejected)

	_, err := h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)

	got, err := h.orders.FindByID(h.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderSubmissionFailed, got.Status)
	gotExec := h.reload(exec.ID)
	assert.Equal(t, model.ExecSubmissionFailed, gotExec.Status)
	assert.True(t, gotExec.RequiresManualIntervention)

	alerts, _, err := h.operatorAlerts.List(h.ctx, true, 1, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.OperatorAlertSubmissionFailed, alerts[0].Kind)

	h.shop.SubmitErr = nil
	h.now = day(20)
	resubmitted, err := h.submission.ResubmitOrder(h.ctx, uuid.New(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderProcessing, resubmitted.Status)
	assert.Equal(t, model.ExecProcessing, h.reload(exec.ID).Status)

	_, open, err := h.operatorAlerts.List(h.ctx, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, open)
}

func TestSubmissionStage_OperatorCancelRefundsCapture(t *testing.T) {
	h := newHarness(t)
	exec, order := h.fundedOrder("2025-12-20")
	h.shop.SubmitErr = fulfillment.ErrRejected
	_, err := h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)

	cancelled, err := h.submission.CancelOrder(h.ctx, uuid.New(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.Equal(t, model.ExecCancelled, h.reload(exec.ID).Status)

	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.CaptureID}, h.processor.Refunded)
}

func TestSubmissionStage_MarkDelivered(t *testing.T) {
	h := newHarness(t)
	exec, order := h.fundedOrder("2025-12-20")
	_, err := h.submission.Run(h.ctx, day(20))
	require.NoError(t, err)

	delivered, err := h.submission.MarkDelivered(h.ctx, uuid.New(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, delivered.Status)
	assert.Equal(t, model.ExecDelivered, h.reload(exec.ID).Status)

	_, err = h.submission.MarkDelivered(h.ctx, uuid.New(), order.ID)
	assert.ErrorIs(t, err, ErrConflict)
}
