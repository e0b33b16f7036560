package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type syncRecorder struct {
	calls []uuid.UUID
	err   error
}

func (s *syncRecorder) Sync(_ context.Context, id uuid.UUID, _, _, _ string) error {
	s.calls = append(s.calls, id)
	return s.err
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func newRouter(auth *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/admin", auth.RequireAuth(), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	users := &syncRecorder{}
	r := newRouter(NewAuth(testSecret, users, log))
	id := uuid.New()
	valid := signToken(t, testSecret, jwt.MapClaims{
		"sub": id.String(), "role": "customer", "email": "ada@example.com", "exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "wrong secret", bearer: signToken(t, []byte("other"), jwt.MapClaims{"sub": id.String(), "role": "customer"}), want: http.StatusUnauthorized},
		{name: "expired", bearer: signToken(t, testSecret, jwt.MapClaims{"sub": id.String(), "role": "customer", "exp": time.Now().Add(-time.Hour).Unix()}), want: http.StatusUnauthorized},
		{name: "subject not a uuid", bearer: signToken(t, testSecret, jwt.MapClaims{"sub": "42", "role": "customer"}), want: http.StatusUnauthorized},
		{name: "no role", bearer: signToken(t, testSecret, jwt.MapClaims{"sub": id.String()}), want: http.StatusUnauthorized},
		{name: "valid", bearer: valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/me", tt.bearer)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, id.String(), w.Body.String())
			}
		})
	}

	get(r, "/me", valid)
	assert.Equal(t, []uuid.UUID{id}, users.calls, "a known user is synced once per cache window")
}

func TestRequireAuth_SyncFailureRejects(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := newRouter(NewAuth(testSecret, &syncRecorder{err: assert.AnError}, log))
	token := signToken(t, testSecret, jwt.MapClaims{"sub": uuid.NewString(), "role": "customer", "email": "a@example.com"})

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", token).Code)
}

func TestRequireRole(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := newRouter(NewAuth(testSecret, &syncRecorder{}, log))

	customer := signToken(t, testSecret, jwt.MapClaims{"sub": uuid.NewString(), "role": "customer", "email": "c@example.com"})
	admin := signToken(t, testSecret, jwt.MapClaims{"sub": uuid.NewString(), "role": "admin", "email": "a@example.com"})

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", customer).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", admin).Code)
}
