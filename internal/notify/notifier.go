// Package notify delivers user-facing notifications. Delivery is fire-and-forget: a failed
// notification never blocks or rolls back a lifecycle transition.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind names the notification template.
type Kind string

const (
	KindUpcomingGift       Kind = "upcoming_gift"
	KindApprovalRequested  Kind = "approval_requested"
	KindSelectionFailed    Kind = "selection_failed"
	KindApprovalExpired    Kind = "approval_expired"
	KindPaymentFailed      Kind = "payment_failed"
	KindCaptureFailed      Kind = "capture_failed"
	KindOrderProcessing    Kind = "order_processing"
	KindOrderDelivered     Kind = "order_delivered"
	KindExecutionCancelled Kind = "execution_cancelled"
)

type Notification struct {
	Kind        Kind              `json:"kind"`
	UserID      uuid.UUID         `json:"user_id"`
	ExecutionID uuid.UUID         `json:"execution_id"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log; used when no broker is configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.Logger.WithFields(logrus.Fields{
		"kind":         n.Kind,
		"user_id":      n.UserID,
		"execution_id": n.ExecutionID,
	}).Info(n.Subject)
	return nil
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	Sent []Notification
	Err  error
}

func (r *Recorder) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, n)
	return nil
}

// Kinds lists the kinds sent so far, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.Sent))
	for _, n := range r.Sent {
		out = append(out, n.Kind)
	}
	return out
}
