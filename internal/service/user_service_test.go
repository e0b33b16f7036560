package service

import (
	"testing"

	"giftflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Sync(t *testing.T) {
	h := newHarness(t)
	svc := NewUserService(h.users)
	id := uuid.New()

	require.NoError(t, svc.Sync(h.ctx, id, "  Ada@Example.COM ", " Ada ", "superuser"))
	u, err := svc.GetByID(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada", u.DisplayName)
	assert.Equal(t, model.RoleCustomer, u.Role)

	require.NoError(t, svc.Sync(h.ctx, id, "ada@example.com", "Ada L.", model.RoleAdmin))
	u, err = svc.GetByID(h.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.DisplayName)
	assert.Equal(t, model.RoleAdmin, u.Role)

	assert.ErrorIs(t, svc.Sync(h.ctx, uuid.Nil, "x@example.com", "", ""), ErrValidation)
	assert.ErrorIs(t, svc.Sync(h.ctx, uuid.New(), " ", "", ""), ErrValidation)

	_, err = svc.GetByID(h.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
