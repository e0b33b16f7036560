package service

import (
	"context"
	"time"

	"giftflow/internal/model"
	"giftflow/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type OnboardingResponse struct {
	Step         model.OnboardingStep   `json:"step"`
	SkippedSteps []model.OnboardingStep `json:"skipped_steps"`
	Completed    bool                   `json:"completed"`
	CompletedAt  string                 `json:"completed_at,omitempty"`
}

type OnboardingStepRequest struct {
	Step model.OnboardingStep `json:"step" binding:"required"`
}

// --- Interface ---

// OnboardingService keeps each user's first-run progress on the server so it survives
// devices and sessions.
type OnboardingService interface {
	Get(ctx context.Context, userID uuid.UUID) (OnboardingResponse, error)
	Advance(ctx context.Context, userID uuid.UUID, req OnboardingStepRequest) (OnboardingResponse, error)
	Skip(ctx context.Context, userID uuid.UUID, req OnboardingStepRequest) (OnboardingResponse, error)
}

// --- Implementation ---

type onboardingService struct {
	tx       repository.TransactionManager
	progress repository.OnboardingRepository
	now      func() time.Time
}

func NewOnboardingService(tx repository.TransactionManager, progress repository.OnboardingRepository) OnboardingService {
	return &onboardingService{tx: tx, progress: progress, now: utcNow}
}

func (s *onboardingService) Get(ctx context.Context, userID uuid.UUID) (OnboardingResponse, error) {
	var res OnboardingResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.progress.FindOrCreate(txCtx, userID)
		if err != nil {
			return err
		}
		res = toOnboardingResponse(p)
		return nil
	})
	return res, err
}

// Advance completes the current step. Completing any other step is a conflict so two
// clients cannot race the flow forward.
func (s *onboardingService) Advance(ctx context.Context, userID uuid.UUID, req OnboardingStepRequest) (OnboardingResponse, error) {
	return s.step(ctx, userID, req, false)
}

func (s *onboardingService) Skip(ctx context.Context, userID uuid.UUID, req OnboardingStepRequest) (OnboardingResponse, error) {
	return s.step(ctx, userID, req, true)
}

func (s *onboardingService) step(ctx context.Context, userID uuid.UUID, req OnboardingStepRequest, skip bool) (OnboardingResponse, error) {
	if !req.Step.Valid() || req.Step == model.StepCompleted {
		return OnboardingResponse{}, validationError("unknown onboarding step %q", req.Step)
	}
	var res OnboardingResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.progress.FindOrCreate(txCtx, userID)
		if err != nil {
			return err
		}
		if p.Step == model.StepCompleted {
			return conflictError("onboarding is already completed")
		}
		if p.Step != req.Step {
			return conflictError("current onboarding step is %s, not %s", p.Step, req.Step)
		}
		if skip {
			p.SkippedSteps = append(p.SkippedSteps, req.Step)
		}
		p.Step = p.Step.Next()
		if p.Step == model.StepCompleted {
			at := s.now()
			p.CompletedAt = &at
		}
		if err := s.progress.Save(txCtx, p); err != nil {
			return err
		}
		res = toOnboardingResponse(p)
		return nil
	})
	return res, err
}

func toOnboardingResponse(p *model.OnboardingProgress) OnboardingResponse {
	res := OnboardingResponse{
		Step:         p.Step,
		SkippedSteps: []model.OnboardingStep(p.SkippedSteps),
		Completed:    p.Step == model.StepCompleted,
	}
	if res.SkippedSteps == nil {
		res.SkippedSteps = []model.OnboardingStep{}
	}
	if p.CompletedAt != nil {
		res.CompletedAt = p.CompletedAt.Format("2006-01-02 15:04:05")
	}
	return res
}
