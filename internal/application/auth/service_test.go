package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/utils"
)

// memoryUsers 内存用户仓储
type memoryUsers struct {
	mu      sync.Mutex
	nextID  uint
	users   map[string]*entity.User
	logins  int
	failGet error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*entity.User)}
}

func (m *memoryUsers) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.users[u.Username] = u
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uint) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[username], nil
}

func (m *memoryUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[username]
	return ok, nil
}

func (m *memoryUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) UpdateLastLogin(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins++
	now := time.Now()
	for _, u := range m.users {
		if u.ID == id {
			u.LastLogin = &now
		}
	}
	return nil
}

func newTestService() (*Service, *memoryUsers) {
	users := newMemoryUsers()
	return NewService(users, utils.NewJWTManager("test-secret", "icad-hub", 30*time.Minute)), users
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	user, err := svc.Register(ctx, RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "s3cret", FullName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.UserRoleTrainee, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "s3cret", user.HashedPassword)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "x"})
	assert.ErrorIs(t, err, apperrors.ErrUserExists)

	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "alice@example.com", Password: "x"})
	assert.ErrorIs(t, err, apperrors.ErrUserExists)

	admin, err := svc.Register(ctx, RegisterInput{Username: "mallory", Email: "m@example.com", Password: "x", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, entity.UserRoleTrainee, admin.Role)
	assert.False(t, admin.IsAdmin())
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	user, err := svc.CreateUser(ctx, RegisterInput{Username: "erin", Email: "e@example.com", Password: "x", Role: "employee"})
	require.NoError(t, err)
	assert.Equal(t, entity.UserRoleEmployee, user.Role)

	_, err = svc.CreateUser(ctx, RegisterInput{Username: "carol", Email: "c@example.com", Password: "x", Role: "superuser"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()

	_, err := svc.CreateUser(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "s3cret", Role: "employee"})
	require.NoError(t, err)

	token, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, token.TokenType)
	assert.Equal(t, 1800, token.ExpiresIn)
	assert.Equal(t, 1, users.logins)

	user, err := svc.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, entity.UserRoleEmployee, user.Role)
	assert.NotNil(t, user.LastLogin)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "s3cret"})
	require.NoError(t, err)

	token, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	users.users["alice"].IsActive = false

	_, err = svc.Login(ctx, "alice", "s3cret")
	assert.ErrorIs(t, err, apperrors.ErrUserInactive)

	_, err = svc.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUserInactive)
}

func TestAuthenticate_Errors(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()

	_, err := svc.Authenticate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	// 令牌有效但用户已被删除
	token, err := utils.NewJWTManager("test-secret", "icad-hub", time.Minute).GenerateToken(9, "ghost", "admin")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	expired, err := utils.NewJWTManager("test-secret", "icad-hub", -time.Minute).GenerateToken(1, "alice", "admin")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, expired)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

	users.failGet = assert.AnError
	_, err = svc.Login(ctx, "alice", "x")
	assert.ErrorIs(t, err, apperrors.New(apperrors.CodeDatabaseError, ""))
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	in := RegisterInput{Username: "admin", Email: "admin@example.com", Password: "change-me", FullName: "Administrator"}
	user, created, err := svc.Bootstrap(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.IsAdmin())

	again, created, err := svc.Bootstrap(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
}
