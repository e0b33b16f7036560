package service

import (
	"testing"
	"time"

	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleEvaluator_CreatesOnePendingSelectionInsideWindow(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25", withBudget(50))

	res, err := h.evaluator.Run(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	execs, err := h.executions.ListForOccurrence(h.ctx, rule.ID, "2025-12-25")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecPendingSelection, execs[0].Status)
	assert.Equal(t, owner.ID, execs[0].UserID)
	assert.Equal(t, []notify.Kind{notify.KindUpcomingGift}, h.notes.Kinds())

	// A second pass over the same day must not add anything.
	res, err = h.evaluator.Run(h.ctx, h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)

	execs, err = h.executions.ListForOccurrence(h.ctx, rule.ID, "2025-12-25")
	require.NoError(t, err)
	assert.Len(t, execs, 1)
	assert.Len(t, h.notes.Sent, 1)
}

func TestRuleEvaluator_IgnoresOccasionsOutsideWindow(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	h.rule(owner, friend, "2025-12-26")

	res, err := h.evaluator.Run(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}

func TestRuleEvaluator_SkipsInactiveRules(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25")
	rule.IsActive = false
	require.NoError(t, h.rules.Save(h.ctx, rule))

	res, err := h.evaluator.Run(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}

func TestRuleEvaluator_LeavesFailedOccurrenceForManualRetrigger(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25")
	h.execution(rule, "2025-12-25", model.ExecSelectionFailed)

	res, err := h.evaluator.Run(h.ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	execs, err := h.executions.ListForOccurrence(h.ctx, rule.ID, "2025-12-25")
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestExecutionRepository_RejectsSecondLiveExecutionForOccurrence(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25")
	h.execution(rule, "2025-12-25", model.ExecPendingSelection)

	err := h.executions.Create(h.ctx, &model.AutoGiftExecution{
		UserID: rule.UserID, RuleID: rule.ID, EventID: rule.EventID,
		ExecutionDate: "2025-12-25", Status: model.ExecPendingSelection,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestExecutionRepository_RejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25")

	err := h.executions.Create(h.ctx, &model.AutoGiftExecution{
		UserID: rule.UserID, RuleID: rule.ID, EventID: rule.EventID,
		ExecutionDate: "2025-12-25", Status: "shipped",
	})
	assert.ErrorIs(t, err, model.ErrInvalidEnum)
}

func TestExecutionRepository_TransitionIsCompareAndSwap(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	rule := h.rule(owner, friend, "2025-12-25")
	exec := h.execution(rule, "2025-12-25", model.ExecPendingApproval)

	require.NoError(t, h.executions.Transition(h.ctx, exec.ID, model.ExecPendingApproval, model.ExecApproved, nil))
	err := h.executions.Transition(h.ctx, exec.ID, model.ExecPendingApproval, model.ExecRejected, nil)
	assert.ErrorIs(t, err, repository.ErrStaleState)

	err = h.executions.Transition(h.ctx, exec.ID, model.ExecApproved, model.ExecDelivered, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.Equal(t, model.ExecApproved, h.reload(exec.ID).Status)
}
