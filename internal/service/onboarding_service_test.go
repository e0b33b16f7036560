package service

import (
	"testing"

	"giftflow/internal/model"
	"giftflow/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboardingService_Flow(t *testing.T) {
	h := newHarness(t)
	svc := NewOnboardingService(h.tx, repository.NewOnboardingRepository(h.db))
	u := h.user("new@example.com")

	res, err := svc.Get(h.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepProfile, res.Step)
	assert.Empty(t, res.SkippedSteps)
	assert.NotNil(t, res.SkippedSteps)
	assert.False(t, res.Completed)

	res, err = svc.Advance(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepProfile})
	require.NoError(t, err)
	assert.Equal(t, model.StepInterests, res.Step)

	_, err = svc.Advance(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepProfile})
	assert.ErrorIs(t, err, ErrConflict, "a stale client cannot replay a finished step")

	res, err = svc.Skip(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepInterests})
	require.NoError(t, err)
	assert.Equal(t, model.StepConnections, res.Step)
	assert.Equal(t, []model.OnboardingStep{model.StepInterests}, res.SkippedSteps)

	_, err = svc.Advance(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepConnections})
	require.NoError(t, err)
	res, err = svc.Advance(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepWishlist})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.NotEmpty(t, res.CompletedAt)

	res, err = svc.Get(h.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepCompleted, res.Step)
	assert.Equal(t, []model.OnboardingStep{model.StepInterests}, res.SkippedSteps)

	_, err = svc.Skip(h.ctx, u.ID, OnboardingStepRequest{Step: model.StepWishlist})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOnboardingService_RejectsUnknownSteps(t *testing.T) {
	h := newHarness(t)
	svc := NewOnboardingService(h.tx, repository.NewOnboardingRepository(h.db))
	u := h.user("new@example.com")

	for _, step := range []model.OnboardingStep{"", "tour", model.StepCompleted} {
		_, err := svc.Advance(h.ctx, u.ID, OnboardingStepRequest{Step: step})
		assert.ErrorIs(t, err, ErrValidation, "step %q", step)
	}
}
