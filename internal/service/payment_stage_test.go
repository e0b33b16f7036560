package service

import (
	"errors"
	"testing"
	"time"

	"giftflow/internal/gateway/payment"
	"giftflow/internal/model"
	"giftflow/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) ownRule() *model.AutoGiftRule {
	h.t.Helper()
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	return h.rule(owner, friend, "2025-12-25")
}

func TestPaymentStage_CapturesWithinLeadTime(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-25", 40)

	res, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed, "occasion is still a week out")

	h.now = time.Date(2025, 12, 21, 6, 0, 0, 0, time.UTC)
	res, err = h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, h.processor.CaptureCalls)

	assert.Equal(t, model.ExecPaymentConfirmed, h.reload(exec.ID).Status)
	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthCaptured, auth.Status)
	assert.NotEmpty(t, auth.CaptureID)

	order, err := h.orders.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaymentConfirmed, order.Status)
	assert.Equal(t, model.FundingFundsAllocated, order.FundingStatus)
	require.NotNil(t, order.FundsAllocatedAt)
}

func TestPaymentStage_CaptureWithoutAuthorizationNeedsOperator(t *testing.T) {
	h := newHarness(t)
	exec := h.execution(h.ownRule(), "2025-12-20", model.ExecAwaitingFunds, selected("p-1", 25))

	res, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, h.processor.CaptureCalls)

	got := h.reload(exec.ID)
	assert.Equal(t, model.ExecCaptureFailed, got.Status)
	assert.True(t, got.RequiresManualIntervention)

	alerts, total, err := h.operatorAlerts.List(h.ctx, true, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.OperatorAlertAuthorizationMissing, alerts[0].Kind)
	assert.Equal(t, exec.ID, *alerts[0].ExecutionID)
	assert.Equal(t, []notify.Kind{notify.KindCaptureFailed}, h.notes.Kinds())
}

func TestPaymentStage_DeclinedAuthorizationFailsPayment(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	exec := h.execution(rule, "2025-12-25", model.ExecApproved, selected("p-1", 25))
	h.processor.AuthorizeErr = payment.ErrDeclined

	res, err := h.payment.RunAuthorize(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	got := h.reload(exec.ID)
	assert.Equal(t, model.ExecPaymentFailed, got.Status)
	assert.Contains(t, got.FailureReason, "declined")
	assert.Nil(t, got.OrderID)
	assert.Equal(t, []notify.Kind{notify.KindPaymentFailed}, h.notes.Kinds())

	_, err = h.payments.FindByExecutionID(h.ctx, exec.ID)
	assert.Error(t, err)

	// The occurrence slot is free again for a manual re-trigger.
	h.execution(rule, "2025-12-25", model.ExecPendingSelection)
}

func TestPaymentStage_RecoversLostAuthorizationResponse(t *testing.T) {
	h := newHarness(t)
	exec := h.execution(h.ownRule(), "2025-12-25", model.ExecApproved, selected("p-1", 25))
	h.processor.AuthorizeErr = errors.New("ignored")
	h.processor.AuthorizeLostResponse = true

	_, err := h.payment.RunAuthorize(h.ctx, h.now)
	require.NoError(t, err)

	assert.Equal(t, model.ExecAwaitingFunds, h.reload(exec.ID).Status)
	assert.Equal(t, 1, h.processor.AuthorizeCalls)
}

func TestPaymentStage_RecoversLostCaptureResponse(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-20", 40)
	h.processor.CaptureErr = errors.New("ignored")
	h.processor.CaptureLostResponse = true

	_, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)

	assert.Equal(t, model.ExecPaymentConfirmed, h.reload(exec.ID).Status)
	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, auth.CaptureID)
}

func TestPaymentStage_ExpiredAuthorizationIsNotCaptured(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-20", 40)
	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	h.processor.Expire(auth.ProcessorAuthorizationID)

	_, err = h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)

	assert.Equal(t, model.ExecCaptureFailed, h.reload(exec.ID).Status)
	auth, err = h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthCaptureFailed, auth.Status)
	order, err := h.orders.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCaptureFailed, order.Status)
}

func TestPaymentStage_OperatorRetriesCapture(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-20", 40)
	h.processor.CaptureErr = errors.New("processor unavailable")

	_, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)
	require.Equal(t, model.ExecCaptureFailed, h.reload(exec.ID).Status)

	h.processor.CaptureErr = nil
	admin := uuid.New()
	res, err := h.payment.RetryCapture(h.ctx, admin, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.ExecPaymentConfirmed), res.Status)

	got := h.reload(exec.ID)
	assert.Equal(t, model.ExecPaymentConfirmed, got.Status)
	assert.False(t, got.RequiresManualIntervention)

	_, open, err := h.operatorAlerts.List(h.ctx, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, open)

	_, err = h.payment.RetryCapture(h.ctx, admin, exec.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPaymentStage_OperatorCancelsHeldExecution(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-20", 40)
	h.processor.CaptureErr = errors.New("processor unavailable")
	_, err := h.payment.RunCapture(h.ctx, h.now)
	require.NoError(t, err)

	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)

	_, err = h.payment.CancelHeld(h.ctx, uuid.New(), exec.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ExecCancelled, h.reload(exec.ID).Status)
	assert.Equal(t, []string{auth.ProcessorAuthorizationID}, h.processor.Voided)
	auth, err = h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthVoided, auth.Status)
}
