package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftflow/internal/logger"
	"giftflow/internal/model"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"

	"github.com/sirupsen/logrus"
)

const JobEvaluateRules = "evaluate-rules"

// RuleEvaluator creates one pending_selection execution per active rule whose next
// occurrence falls inside the rule's notification window.
type RuleEvaluator struct {
	stage
	rules    repository.RuleRepository
	notes    notifier
	leadDays int
}

func NewRuleEvaluator(
	tx repository.TransactionManager,
	rules repository.RuleRepository,
	executions repository.ExecutionRepository,
	audit repository.AuditRepository,
	notifications notify.Notifier,
	log *logrus.Logger,
	leadDays int,
) *RuleEvaluator {
	return &RuleEvaluator{
		stage:    newStage(tx, executions, audit, log),
		rules:    rules,
		notes:    notifier{target: notifications, logger: log, now: utcNow},
		leadDays: leadDays,
	}
}

func (e *RuleEvaluator) Name() string { return JobEvaluateRules }

func (e *RuleEvaluator) Run(ctx context.Context, now time.Time) (scheduler.Result, error) {
	var result scheduler.Result
	today := model.DateOf(now)

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("listing active rules: %w", err)
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Event == nil {
			continue
		}
		occurrence, ok := rule.Event.NextOccurrence(today)
		if !ok {
			continue
		}
		days := today.DaysUntil(occurrence)
		if days < 0 || days > rule.LeadDays(e.leadDays) {
			continue
		}

		result.Processed++
		exec, err := e.evaluate(ctx, rule, occurrence)
		switch {
		case err != nil:
			result.Failed++
			logger.LogError(e.logger, "rule_evaluator", "Run", "create execution", rule.ID.String(), err)
		case exec == nil:
			result.Skipped++
		default:
			result.Succeeded++
			e.notes.send(ctx, notify.KindUpcomingGift, exec,
				fmt.Sprintf("An auto-gift is being prepared for %s", occurrence),
				fmt.Sprintf("Your %s gift will be selected within a budget of %s.", rule.DateType, rule.BudgetLimit.StringFixed(2)),
				map[string]string{"rule_id": rule.ID.String(), "execution_date": occurrence.String()})
		}
	}
	return result, nil
}

// evaluate returns nil without error when the occurrence already has an execution.
func (e *RuleEvaluator) evaluate(ctx context.Context, rule *model.AutoGiftRule, occurrence model.Date) (*model.AutoGiftExecution, error) {
	existing, err := e.executions.ListForOccurrence(ctx, rule.ID, occurrence)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	exec := &model.AutoGiftExecution{
		UserID:        rule.UserID,
		RuleID:        rule.ID,
		EventID:       rule.EventID,
		ExecutionDate: occurrence,
		Status:        model.ExecPendingSelection,
		GiftMessage:   rule.GiftMessage,
	}
	if err := e.executions.Create(ctx, exec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"execution_id":   exec.ID,
		"rule_id":        rule.ID,
		"execution_date": occurrence,
	}).Info("execution created")
	return exec, nil
}
