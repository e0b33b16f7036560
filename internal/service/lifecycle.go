package service

import (
	"context"
	"fmt"
	"time"

	"giftflow/internal/logger"
	"giftflow/internal/metrics"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize = 100
	defaultClaimTTL  = 5 * time.Minute
)

func utcNow() time.Time { return time.Now().UTC() }

// transitioner applies execution status changes and keeps the in-memory copy, metrics
// and log in step with the stored row.
type transitioner struct {
	executions repository.ExecutionRepository
	logger     *logrus.Logger
}

func (t transitioner) move(ctx context.Context, exec *model.AutoGiftExecution, to model.ExecutionStatus, updates map[string]interface{}) error {
	from := exec.Status
	if err := t.executions.Transition(ctx, exec.ID, from, to, updates); err != nil {
		return err
	}
	exec.Status = to
	metrics.ExecutionTransitions.WithLabelValues(string(from), string(to)).Inc()
	t.logger.WithFields(logrus.Fields{
		"execution_id": exec.ID,
		"rule_id":      exec.RuleID,
		"from":         from,
		"to":           to,
	}).Info("execution transitioned")
	return nil
}

// notifier wraps notify.Notifier so delivery failures are logged and never surface.
type notifier struct {
	target notify.Notifier
	logger *logrus.Logger
	now    func() time.Time
}

func (n notifier) send(ctx context.Context, kind notify.Kind, exec *model.AutoGiftExecution, subject, body string, data map[string]string) {
	if n.target == nil {
		return
	}
	msg := notify.Notification{
		Kind:        kind,
		UserID:      exec.UserID,
		ExecutionID: exec.ID,
		Subject:     subject,
		Body:        body,
		Data:        data,
		CreatedAt:   n.now(),
	}
	if err := n.target.Notify(ctx, msg); err != nil {
		logger.LogError(n.logger, "service", "notify", string(kind), exec.ID.String(), err)
	}
}

// stage holds what every background stage shares.
type stage struct {
	tx         repository.TransactionManager
	executions repository.ExecutionRepository
	audit      repository.AuditRepository
	logger     *logrus.Logger
	workerID   string
	claimTTL   time.Duration
	batchSize  int
}

func newStage(tx repository.TransactionManager, executions repository.ExecutionRepository, audit repository.AuditRepository, log *logrus.Logger) stage {
	return stage{
		tx:         tx,
		executions: executions,
		audit:      audit,
		logger:     log,
		workerID:   fmt.Sprintf("worker-%s", uuid.NewString()[:8]),
		claimTTL:   defaultClaimTTL,
		batchSize:  defaultBatchSize,
	}
}

func (s stage) transitions() transitioner {
	return transitioner{executions: s.executions, logger: s.logger}
}

// claim leases exec to this worker; false means another worker got there first.
func (s stage) claim(ctx context.Context, exec *model.AutoGiftExecution, now time.Time) bool {
	ok, err := s.executions.Claim(ctx, exec.ID, exec.Status, s.workerID, now.Add(s.claimTTL), now)
	if err != nil {
		logger.LogError(s.logger, "service", "claim", "claim execution", exec.ID.String(), err)
		return false
	}
	return ok
}

func (s stage) release(ctx context.Context, exec *model.AutoGiftExecution) {
	if err := s.executions.ReleaseClaim(ctx, exec.ID); err != nil {
		logger.LogError(s.logger, "service", "release", "release claim", exec.ID.String(), err)
	}
}

// StageOptions tune background stages; zero values keep the defaults.
type StageOptions struct {
	WorkerID  string
	ClaimTTL  time.Duration
	BatchSize int
}

func (s *stage) apply(opts StageOptions) {
	if opts.WorkerID != "" {
		s.workerID = opts.WorkerID
	}
	if opts.ClaimTTL > 0 {
		s.claimTTL = opts.ClaimTTL
	}
	if opts.BatchSize > 0 {
		s.batchSize = opts.BatchSize
	}
}
