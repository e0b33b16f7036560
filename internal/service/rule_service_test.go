package service

import (
	"testing"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestValidateRule(t *testing.T) {
	dec := func(v int64) *decimal.Decimal { d := decimal.NewFromInt(v); return &d }
	valid := func() RuleRequest {
		return RuleRequest{BudgetLimit: decimal.NewFromInt(50), PaymentMethodID: "pm_1", NotificationDays: []int{7}}
	}

	tests := []struct {
		name    string
		mutate  func(*RuleRequest)
		wantErr bool
	}{
		{name: "minimal rule", mutate: func(r *RuleRequest) {}},
		{name: "zero budget", mutate: func(r *RuleRequest) { r.BudgetLimit = decimal.Zero }, wantErr: true},
		{name: "budget above platform cap", mutate: func(r *RuleRequest) { r.BudgetLimit = decimal.NewFromInt(5000) }, wantErr: true},
		{name: "no payment method", mutate: func(r *RuleRequest) { r.PaymentMethodID = " " }, wantErr: true},
		{name: "unknown source", mutate: func(r *RuleRequest) { r.Criteria.Source = "catalog" }, wantErr: true},
		{name: "min above max", mutate: func(r *RuleRequest) { r.Criteria.MinPrice, r.Criteria.MaxPrice = dec(30), dec(20) }, wantErr: true},
		{name: "max above budget", mutate: func(r *RuleRequest) { r.Criteria.MaxPrice = dec(60) }, wantErr: true},
		{name: "negative min", mutate: func(r *RuleRequest) { r.Criteria.MinPrice = dec(-1) }, wantErr: true},
		{name: "too many items", mutate: func(r *RuleRequest) { r.Criteria.MaxItems = 11 }, wantErr: true},
		{name: "notification day out of range", mutate: func(r *RuleRequest) { r.NotificationDays = []int{0} }, wantErr: true},
		{name: "price band inside budget", mutate: func(r *RuleRequest) { r.Criteria.MinPrice, r.Criteria.MaxPrice = dec(10), dec(50) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			_, err := ValidateRule(req, decimal.NewFromInt(1000))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRule_NormalizesCriteria(t *testing.T) {
	criteria, err := ValidateRule(RuleRequest{
		BudgetLimit:     decimal.NewFromInt(50),
		PaymentMethodID: "pm_1",
		Criteria:        model.SelectionCriteria{Source: "WISHLIST", Categories: []string{" Books", "books", ""}},
	}, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, model.SourceWishlist, criteria.Source)
	assert.Equal(t, []string{"books"}, criteria.Categories)
	assert.Equal(t, 1, criteria.MaxItems)
}

func TestRuleService_CreateDefaultsToApproval(t *testing.T) {
	h := newHarness(t)
	owner, friend := h.user("owner@example.com"), h.user("friend@example.com")
	event := &model.GiftEvent{
		UserID: owner.ID, RecipientUserID: &friend.ID, RecipientEmail: friend.Email,
		DateType: model.DateTypeAnniversary, EventDate: "2020-06-01", Recurring: true,
		ShippingAddress: datatypes.NewJSONType(testAddress),
	}
	require.NoError(t, h.events.Create(h.ctx, event))

	res, err := h.ruleSvc.Create(h.ctx, owner.ID, RuleRequest{
		EventID: event.ID.String(), BudgetLimit: decimal.NewFromInt(75), PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)
	assert.True(t, res.IsActive)
	assert.True(t, res.RequiresApproval)
	assert.Equal(t, string(model.DateTypeAnniversary), res.DateType)
	assert.Equal(t, model.SourceBoth, res.Criteria.Source)
	require.NotNil(t, res.RecipientUserID)
	assert.Equal(t, friend.ID.String(), *res.RecipientUserID)

	stranger := h.user("stranger@example.com")
	_, err = h.ruleSvc.Create(h.ctx, stranger.ID, RuleRequest{
		EventID: event.ID.String(), BudgetLimit: decimal.NewFromInt(75), PaymentMethodID: "pm_1",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRuleService_DeactivateCancelsOpenExecutions(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()
	held := h.authorizedExecution(rule, "2025-12-25", 40)
	pending := h.execution(rule, "2026-12-25", model.ExecPendingSelection)
	auth, err := h.payments.FindByExecutionID(h.ctx, held.ID)
	require.NoError(t, err)

	res, err := h.ruleSvc.Deactivate(h.ctx, rule.UserID, rule.ID)
	require.NoError(t, err)
	assert.False(t, res.IsActive)

	assert.Equal(t, model.ExecCancelled, h.reload(held.ID).Status)
	assert.Equal(t, model.ExecCancelled, h.reload(pending.ID).Status)
	assert.Equal(t, []string{auth.ProcessorAuthorizationID}, h.processor.Voided)

	stored, err := h.rules.FindByID(h.ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = h.ruleSvc.Update(h.ctx, rule.UserID, rule.ID, RuleRequest{
		EventID: rule.EventID.String(), BudgetLimit: decimal.NewFromInt(10), PaymentMethodID: "pm_1",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRuleService_GetIsScopedToOwner(t *testing.T) {
	h := newHarness(t)
	rule := h.ownRule()

	_, err := h.ruleSvc.Get(h.ctx, uuid.New(), rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
