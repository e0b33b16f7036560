package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	n := &LogNotifier{Logger: log}
	userID, execID := uuid.New(), uuid.New()

	require.NoError(t, n.Notify(context.Background(), Notification{
		Kind: KindApprovalRequested, UserID: userID, ExecutionID: execID, Subject: "Approve your gift",
	}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Approve your gift", entry.Message)
	assert.Equal(t, KindApprovalRequested, entry.Data["kind"])
	assert.Equal(t, userID, entry.Data["user_id"])
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	require.NoError(t, r.Notify(ctx, Notification{Kind: KindUpcomingGift}))
	require.NoError(t, r.Notify(ctx, Notification{Kind: KindOrderProcessing}))
	assert.Equal(t, []Kind{KindUpcomingGift, KindOrderProcessing}, r.Kinds())

	r.Err = errors.New("broker down")
	assert.Error(t, r.Notify(ctx, Notification{Kind: KindOrderDelivered}))
	assert.Len(t, r.Sent, 2)
}

func TestHeaderCarrier(t *testing.T) {
	c := headerCarrier{}
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())

	headers := c.headers()
	require.Len(t, headers, 1)
	assert.Equal(t, "traceparent", headers[0].Key)
	assert.Equal(t, []byte("00-abc-def-01"), headers[0].Value)
}
