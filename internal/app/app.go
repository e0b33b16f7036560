// Package app assembles repositories, gateways, services and pipeline stages from config.
package app

import (
	"context"
	"errors"
	"os"
	"strconv"

	"giftflow/internal/config"
	"giftflow/internal/database"
	"giftflow/internal/gateway/fulfillment"
	"giftflow/internal/gateway/payment"
	"giftflow/internal/gateway/recommender"
	"giftflow/internal/notify"
	"giftflow/internal/repository"
	"giftflow/internal/scheduler"
	"giftflow/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds everything both binaries need.
type App struct {
	Config *config.Config
	Logger *logrus.Logger
	DB     *gorm.DB

	Users      service.UserService
	Events     service.EventService
	Wishlist   service.WishlistService
	Rules      service.RuleService
	Executions service.ExecutionService
	Alerts     service.AlertService
	Audit      service.AuditService
	Onboarding service.OnboardingService

	Evaluator  *service.RuleEvaluator
	Selector   *service.ProductSelector
	Approvals  *service.ApprovalGateway
	Payment    *service.PaymentStage
	Submission *service.SubmissionStage
	Reconciler *service.FundingReconciler

	Runner *scheduler.Runner

	closers []func() error
}

// Build connects to the database (migrating it) and wires every component.
// hub may be nil when no live feed is served.
func Build(ctx context.Context, cfg *config.Config, log *logrus.Logger, hub service.Broadcaster) (*App, error) {
	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: db}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	tx := repository.NewTransactionManager(db)
	users := repository.NewUserRepository(db)
	events := repository.NewEventRepository(db)
	rules := repository.NewRuleRepository(db)
	wishlists := repository.NewWishlistRepository(db)
	executions := repository.NewExecutionRepository(db)
	tokens := repository.NewApprovalTokenRepository(db)
	orders := repository.NewOrderRepository(db)
	payments := repository.NewPaymentRepository(db)
	funding := repository.NewFundingRepository(db)
	operatorAlerts := repository.NewOperatorAlertRepository(db)
	audit := repository.NewAuditRepository(db)
	onboarding := repository.NewOnboardingRepository(db)

	processor := payment.NewHTTPClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.GatewayTimeout)
	shop := fulfillment.NewHTTPClient(cfg.FulfillmentAPIURL, cfg.FulfillmentAPIKey, cfg.GatewayTimeout)
	var rec recommender.Recommender
	if cfg.RecommenderAPIURL != "" {
		rec = recommender.NewHTTPClient(cfg.RecommenderAPIURL, cfg.RecommenderAPIKey, cfg.GatewayTimeout)
	} else {
		log.Warn("RECOMMENDER_API_URL not set, AI product discovery disabled")
	}

	var notes notify.Notifier = &notify.LogNotifier{Logger: log}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.NotificationTopic, log)
		a.closers = append(a.closers, kn.Close)
		notes = kn
	}

	opts := service.StageOptions{WorkerID: workerID(), ClaimTTL: cfg.ClaimTTL, BatchSize: cfg.JobBatchSize}

	a.Users = service.NewUserService(users)
	a.Events = service.NewEventService(events, users)
	a.Wishlist = service.NewWishlistService(wishlists)
	a.Audit = service.NewAuditService(audit)
	a.Onboarding = service.NewOnboardingService(tx, onboarding)
	a.Alerts = service.NewAlertService(tx, operatorAlerts, audit, hub, log)
	a.Rules = service.NewRuleService(tx, rules, events, users, executions, orders, payments, audit, processor, notes, log, cfg.MaxRuleBudget)
	a.Executions = service.NewExecutionService(tx, executions, rules, orders, payments, audit, processor, notes, log)

	a.Evaluator = service.NewRuleEvaluator(tx, rules, executions, audit, notes, log, cfg.NotificationLeadDays)
	a.Approvals = service.NewApprovalGateway(tx, tokens, executions, audit, notes, log, cfg.ApprovalTokenTTL, cfg.ApprovalBaseURL)
	a.Selector = service.NewProductSelector(tx, executions, wishlists, users, audit, shop, rec, a.Approvals, notes, log, opts)
	a.Payment = service.NewPaymentStage(tx, executions, orders, payments, audit, processor, a.Alerts, notes, log,
		cfg.CaptureLeadDays, cfg.AuthorizationTTL, opts)
	a.Approvals.SetAuthorizer(a.Payment)
	a.Submission = service.NewSubmissionStage(tx, executions, orders, payments, audit, shop, processor, a.Alerts, notes, log, opts)
	a.Reconciler = service.NewFundingReconciler(tx, executions, orders, funding, audit, shop, hub, log,
		cfg.LowBalanceThreshold, cfg.CaptureLeadDays)

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if closeLocker != nil {
		a.closers = append(a.closers, closeLocker)
	}
	a.Runner = scheduler.NewRunner(locker, log, cfg.JobInterval, cfg.JobLockTTL)
	// Pipeline order: each stage feeds the next within one tick.
	a.Runner.Register(
		a.Evaluator,
		a.Selector,
		a.Approvals,
		a.Payment.AuthorizeJob(),
		a.Payment.CaptureJob(),
		a.Reconciler,
		a.Submission,
	)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLocker(ctx context.Context, cfg *config.Config, log *logrus.Logger) (scheduler.Locker, func() error, error) {
	if cfg.RedisAddress == "" {
		log.Warn("REDIS_ADDRESS not set, job locks are local to this process")
		return scheduler.NewLocalLocker(), nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	log.WithField("address", cfg.RedisAddress).Info("connected to redis")
	return scheduler.NewRedisLocker(rdb), rdb.Close, nil
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
