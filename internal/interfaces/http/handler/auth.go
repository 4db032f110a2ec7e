// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/application/auth"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// AuthService 认证用例
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*entity.User, error)
	CreateUser(ctx context.Context, in auth.RegisterInput) (*entity.User, error)
	Login(ctx context.Context, username, password string) (*auth.Token, error)
}

// AuthHandler 认证处理器
type AuthHandler struct {
	svc AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register 注册
// @Summary 用户注册
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body dto.RegisterRequest true "注册信息"
// @Success 201 {object} dto.Response[dto.UserResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.svc.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		respondError(c, err, "registration failed")
		return
	}

	dto.Created(c, dto.ToUserResponse(user))
}

// CreateUser 管理员按角色创建用户
// @Summary 创建用户
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body dto.CreateUserRequest true "用户信息"
// @Success 201 {object} dto.Response[dto.UserResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/auth/users [post]
func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, err, "user creation failed")
		return
	}

	dto.Created(c, dto.ToUserResponse(user))
}

// Login 登录
// @Summary 用户登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body dto.LoginRequest true "登录信息"
// @Success 200 {object} dto.Response[dto.TokenResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if apperrors.AsAppError(err).Code == apperrors.CodeInvalidCredentials {
			c.Header("WWW-Authenticate", "Bearer")
		}
		respondError(c, err, "login failed")
		return
	}

	dto.Success(c, &dto.TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	})
}

// Me 当前用户信息
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	dto.Success(c, dto.ToUserResponse(middleware.CurrentUser(c)))
}

// Logout 登出；令牌无状态，由客户端丢弃
// @Router /v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	logger.Info(c.Request.Context(), "user logged out")
	dto.Success(c, &dto.MessageResponse{Message: "Successfully logged out"})
}
