package service

import (
	"errors"
	"fmt"

	"giftflow/internal/repository"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrTokenExpired  = errors.New("approval link has expired")
	ErrTokenConsumed = errors.New("approval link has already been used")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// mapRepoError turns repository sentinels into service errors, naming the entity.
func mapRepoError(entity string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	case errors.Is(err, repository.ErrStaleState):
		return fmt.Errorf("%w: %s changed concurrently", ErrConflict, entity)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s already exists", ErrConflict, entity)
	case errors.Is(err, repository.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
