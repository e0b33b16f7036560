package service

import (
	"context"
	"strings"

	"giftflow/internal/model"
	"giftflow/internal/repository"

	"github.com/google/uuid"
)

type UserService interface {
	// Sync mirrors the identity provider's claims into the local users table.
	Sync(ctx context.Context, id uuid.UUID, email, displayName, role string) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type userService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Sync(ctx context.Context, id uuid.UUID, email, displayName, role string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if id == uuid.Nil || email == "" {
		return validationError("user id and email are required")
	}
	if role != model.RoleAdmin {
		role = model.RoleCustomer
	}
	user := &model.User{Email: email, DisplayName: strings.TrimSpace(displayName), Role: role}
	user.ID = id
	return s.users.Upsert(ctx, user)
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError("user", err)
	}
	return user, nil
}
