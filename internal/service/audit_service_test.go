package service

import (
	"testing"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_GetAuditLogs(t *testing.T) {
	h := newHarness(t)
	named := h.user("named@example.com")
	bare := &model.User{Email: "bare@example.com", Role: model.RoleCustomer}
	bare.ID = uuid.New()
	require.NoError(t, h.users.Upsert(h.ctx, bare))

	require.NoError(t, h.audit.Record(h.ctx, nil, model.ActionRecordPayout, "sched-1", "payout", map[string]string{"amount": "10"}))
	require.NoError(t, h.audit.Record(h.ctx, &named.ID, model.ActionCreateRule, "rule-1", "birthday", nil))
	require.NoError(t, h.audit.Record(h.ctx, &bare.ID, model.ActionUpdateRule, "rule-2", "birthday", nil))

	svc := NewAuditService(h.audit)
	logs, total, err := svc.GetAuditLogs(h.ctx, AuditLogFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 3)

	byEntity := map[string]AuditLogResponse{}
	for _, l := range logs {
		byEntity[l.EntityID] = l
	}
	assert.Equal(t, "System", byEntity["sched-1"].Actor)
	assert.Empty(t, byEntity["sched-1"].UserID)
	assert.JSONEq(t, `{"amount":"10"}`, string(byEntity["sched-1"].Details))
	assert.Equal(t, "named@example.com", byEntity["rule-1"].Actor)
	assert.Nil(t, byEntity["rule-1"].Details, "nil details are omitted")
	assert.Equal(t, "bare@example.com", byEntity["rule-2"].Actor)
	assert.Equal(t, bare.ID.String(), byEntity["rule-2"].UserID)

	page, total, err := svc.GetAuditLogs(h.ctx, AuditLogFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 1)
}

func TestAuditService_Filters(t *testing.T) {
	h := newHarness(t)
	admin := h.user("admin@example.com")
	execID := uuid.NewString()

	require.NoError(t, h.audit.Record(h.ctx, nil, model.ActionRetrigger, execID, "auto_gift_execution", nil))
	require.NoError(t, h.audit.Record(h.ctx, &admin.ID, model.ActionRetryCapture, execID, "auto_gift_execution", nil))
	require.NoError(t, h.audit.Record(h.ctx, &admin.ID, model.ActionResubmitOrder, uuid.NewString(), "gift_order", nil))

	svc := NewAuditService(h.audit)

	history, total, err := svc.GetAuditLogs(h.ctx, AuditLogFilter{EntityID: execID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, history, 2)

	byAdmin, total, err := svc.GetAuditLogs(h.ctx, AuditLogFilter{ActorID: admin.ID.String(), Action: "resubmit_order"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, byAdmin, 1)
	assert.Equal(t, model.ActionResubmitOrder, byAdmin[0].Action)

	_, _, err = svc.GetAuditLogs(h.ctx, AuditLogFilter{ActorID: "admin"})
	assert.ErrorIs(t, err, ErrValidation)
}
