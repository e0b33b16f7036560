package handler

import (
	"errors"
	"net/http"

	"giftflow/internal/middleware"
	"giftflow/internal/scheduler"
	"giftflow/internal/service"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrTokenExpired), errors.Is(err, service.ErrTokenConsumed):
		return http.StatusGone
	case errors.Is(err, service.ErrConflict), errors.Is(err, scheduler.ErrLocked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "Internal server error"
	}
	c.JSON(code, response.Error(code, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// currentUser reads the id RequireAuth stored; it aborts with 401 when missing.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthenticated"))
	}
	return id, ok
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
