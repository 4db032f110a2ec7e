// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 创建用户
	Create(ctx context.Context, user *entity.User) error

	// GetByID 根据 ID 获取用户，不存在时返回 nil, nil
	GetByID(ctx context.Context, id uint) (*entity.User, error)

	// GetByUsername 根据用户名获取用户，不存在时返回 nil, nil
	GetByUsername(ctx context.Context, username string) (*entity.User, error)

	// ExistsByUsername 检查用户名是否存在
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail 检查邮箱是否存在
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// UpdateLastLogin 更新最后登录时间
	UpdateLastLogin(ctx context.Context, id uint) error
}
