package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"giftflow/internal/logger"
	"giftflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"

	syncCacheTTL = 5 * time.Minute
)

// Claims are the identity-provider claims the API relies on.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   string
}

// UserSyncer mirrors token identities into the local users table.
type UserSyncer interface {
	Sync(ctx context.Context, id uuid.UUID, email, displayName, role string) error
}

// Auth verifies bearer tokens issued by the identity provider.
type Auth struct {
	secret []byte
	users  UserSyncer
	logger *logrus.Logger

	synced sync.Map // userID -> time.Time of the last sync
	now    func() time.Time
}

func NewAuth(secret []byte, users UserSyncer, log *logrus.Logger) *Auth {
	return &Auth{secret: secret, users: users, logger: log, now: time.Now}
}

// ParseToken validates an HMAC-signed token and extracts its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := mc["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.New("token subject is not a user id")
	}
	role, _ := mc["role"].(string)
	if role == "" {
		return nil, errors.New("role not found in token")
	}
	email, _ := mc["email"].(string)
	name, _ := mc["name"].(string)
	return &Claims{UserID: id, Email: email, Name: name, Role: role}, nil
}

// RequireAuth validates the token, syncs the user on first sight and stores the
// identity on the gin context.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		claims, err := ParseToken(a.secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if err := a.sync(c.Request.Context(), claims); err != nil {
			logger.LogError(a.logger, "middleware", "RequireAuth", "sync user", claims.UserID.String(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unable to load user"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole must follow RequireAuth.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(ContextUserRole)
		for _, role := range allowedRoles {
			if userRole == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// UserID returns the authenticated user set by RequireAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func (a *Auth) sync(ctx context.Context, claims *Claims) error {
	if a.users == nil {
		return nil
	}
	if at, ok := a.synced.Load(claims.UserID); ok && a.now().Before(at.(time.Time).Add(syncCacheTTL)) {
		return nil
	}
	if claims.Email == "" {
		return errors.New("token has no email claim")
	}
	if err := a.users.Sync(ctx, claims.UserID, claims.Email, claims.Name, claims.Role); err != nil {
		return err
	}
	a.synced.Store(claims.UserID, a.now())
	return nil
}
