// Package auth 提供注册、登录与令牌校验
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/utils"
)

// TokenTypeBearer 令牌类型
const TokenTypeBearer = "bearer"

// RegisterInput 注册参数
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     string
}

// Token 登录结果
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
}

// Service 认证服务
type Service struct {
	users repository.UserRepository
	jwt   *utils.JWTManager
}

// NewService 创建认证服务
func NewService(users repository.UserRepository, jwt *utils.JWTManager) *Service {
	return &Service{users: users, jwt: jwt}
}

// Register 公开自助注册，角色固定为 trainee
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Role = string(entity.UserRoleTrainee)
	return s.create(ctx, in)
}

// CreateUser 按指定角色创建用户，仅供管理员入口与引导流程调用
func (s *Service) CreateUser(ctx context.Context, in RegisterInput) (*entity.User, error) {
	return s.create(ctx, in)
}

// create 创建用户；用户名或邮箱已存在时返回 ErrUserExists
func (s *Service) create(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("username, email and password are required")
	}

	role, err := entity.ParseUserRole(in.Role)
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail(err.Error())
	}

	exists, err := s.users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to check username")
	}
	if exists {
		return nil, apperrors.ErrUserExists.WithDetail("username already registered")
	}

	exists, err = s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to check email")
	}
	if exists {
		return nil, apperrors.ErrUserExists.WithDetail("email already registered")
	}

	user := entity.NewUser(in.Username, in.Email, in.FullName, role)
	if err := user.SetPassword(in.Password); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to hash password")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create user")
	}

	logger.Info(ctx, "user registered", "username", user.Username, "role", string(user.Role))
	return user, nil
}

// Login 校验密码并签发访问令牌
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load user")
	}
	if user == nil || !user.CheckPassword(password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.ErrUserInactive
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.Warn(ctx, "failed to update last login time", "error", err.Error(), "user_id", user.ID)
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to generate token")
	}
	return &Token{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.jwt.TTL().Seconds()),
	}, nil
}

// Authenticate 解析令牌并加载当前用户；停用用户不可访问
func (s *Service) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	claims, err := s.jwt.ParseToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid
	}

	user, err := s.users.GetByUsername(ctx, claims.Username())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load user")
	}
	if user == nil {
		return nil, apperrors.ErrTokenInvalid.WithDetail("could not validate credentials")
	}
	if !user.IsActive {
		return nil, apperrors.ErrUserInactive
	}
	return user, nil
}

// Bootstrap 确保存在管理员账号；已存在同名用户时不做修改
func (s *Service) Bootstrap(ctx context.Context, in RegisterInput) (*entity.User, bool, error) {
	existing, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load user")
	}
	if existing != nil {
		return existing, false, nil
	}

	in.Role = string(entity.UserRoleAdmin)
	user, err := s.create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}
