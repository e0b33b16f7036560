package service

import (
	"testing"

	"giftflow/internal/model"
	"giftflow/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionService_CancelVoidsHeldAuthorization(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-25", 40)
	auth, err := h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)

	res, err := h.execs.Cancel(h.ctx, exec.UserID, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.ExecCancelled), res.Status)

	assert.Equal(t, []string{auth.ProcessorAuthorizationID}, h.processor.Voided)
	auth, err = h.payments.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthVoided, auth.Status)
	order, err := h.orders.FindByExecutionID(h.ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, order.Status)
	assert.Equal(t, []notify.Kind{notify.KindExecutionCancelled}, h.notes.Kinds())
}

func TestExecutionService_CannotCancelAfterCapture(t *testing.T) {
	h := newHarness(t)
	exec, _ := h.capturedOrder(h.ownRule(), "2025-12-20", 40)

	_, err := h.execs.Cancel(h.ctx, exec.UserID, exec.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, model.ExecPaymentConfirmed, h.reload(exec.ID).Status)
	assert.Empty(t, h.processor.Voided)
}

func TestExecutionService_CancelIsScopedToOwner(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	exec := h.execution(rule, "2025-12-25", model.ExecPendingSelection)

	_, err := h.execs.Cancel(h.ctx, *rule.RecipientUserID, exec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecutionService_Retrigger(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	req := RetriggerRequest{RuleID: rule.ID.String(), ExecutionDate: "2025-12-25"}

	_, err := h.execs.Retrigger(h.ctx, rule.UserID, req)
	assert.ErrorIs(t, err, ErrValidation, "nothing to re-trigger yet")

	live := h.execution(rule, "2025-12-25", model.ExecPendingApproval)
	_, err = h.execs.Retrigger(h.ctx, rule.UserID, req)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, h.executions.Transition(h.ctx, live.ID, model.ExecPendingApproval, model.ExecRejected, nil))
	res, err := h.execs.Retrigger(h.ctx, rule.UserID, req)
	require.NoError(t, err)
	assert.Equal(t, string(model.ExecPendingSelection), res.Status)

	execs, err := h.executions.ListForOccurrence(h.ctx, rule.ID, "2025-12-25")
	require.NoError(t, err)
	assert.Len(t, execs, 2)

	_, err = h.execs.Retrigger(h.ctx, rule.UserID, RetriggerRequest{RuleID: rule.ID.String(), ExecutionDate: "2025-12-01"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExecutionService_ListFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	h.execution(rule, "2025-12-25", model.ExecPendingSelection)
	h.execution(rule, "2025-12-24", model.ExecSelectionFailed)

	all, total, err := h.execs.List(h.ctx, rule.UserID, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "2025-12-25", all[0].ExecutionDate)

	failed, total, err := h.execs.List(h.ctx, rule.UserID, string(model.ExecSelectionFailed), 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "2025-12-24", failed[0].ExecutionDate)

	_, _, err = h.execs.List(h.ctx, rule.UserID, "bogus", 1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExecutionService_AdminGetIncludesOrderAndAuthorization(t *testing.T) {
	h := newHarness(t)
	exec := h.authorizedExecution(h.ownRule(), "2025-12-25", 40)

	detail, err := h.execs.AdminGet(h.ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Order)
	require.NotNil(t, detail.Authorization)
	assert.Equal(t, exec.ID, detail.Order.ExecutionID)
}
