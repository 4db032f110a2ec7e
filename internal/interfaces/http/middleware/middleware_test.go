package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthenticator struct {
	users map[string]*entity.User
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*entity.User, error) {
	if token == "expired" {
		return nil, apperrors.ErrTokenExpired
	}
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, apperrors.ErrTokenInvalid
}

func newAuthEngine() *gin.Engine {
	authn := stubAuthenticator{users: map[string]*entity.User{
		"trainee":  {ID: 1, Username: "t", Role: entity.UserRoleTrainee, IsActive: true},
		"employee": {ID: 2, Username: "e", Role: entity.UserRoleEmployee, IsActive: true},
		"admin":    {ID: 3, Username: "a", Role: entity.UserRoleAdmin, IsActive: true},
	}}

	r := gin.New()
	g := r.Group("", Auth(authn))
	g.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, CurrentUser(c).Username) })
	g.GET("/employee", RequireRole(entity.UserRoleEmployee), func(c *gin.Context) { c.Status(http.StatusOK) })
	g.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func request(r http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newAuthEngine()

	w := request(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "Bearer unknown").Code)

	w = request(r, "/me", "Bearer expired")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.CodeTokenExpired))

	w = request(r, "/me", "bearer employee")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "e", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newAuthEngine()

	assert.Equal(t, http.StatusForbidden, request(r, "/employee", "Bearer trainee").Code)
	assert.Equal(t, http.StatusOK, request(r, "/employee", "Bearer employee").Code)
	assert.Equal(t, http.StatusOK, request(r, "/employee", "Bearer admin").Code)

	assert.Equal(t, http.StatusForbidden, request(r, "/admin", "Bearer employee").Code)
	assert.Equal(t, http.StatusOK, request(r, "/admin", "Bearer admin").Code)
}

func TestLocalRateLimiter(t *testing.T) {
	l := NewLocalRateLimiter(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "k", 1, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "k", 1, time.Hour)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "other", 1, time.Hour)
	assert.True(t, ok)
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, NewLocalRateLimiter(1)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, request(r, "/x", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(r, "/x", "").Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = request(r, "/x", "")
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := request(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}
