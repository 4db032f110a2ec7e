// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// UserRole 用户角色
type UserRole string

const (
	UserRoleTrainee  UserRole = "trainee"
	UserRoleEmployee UserRole = "employee"
	UserRoleAdmin    UserRole = "admin"
)

// ParseUserRole 解析角色字符串，空串视为 trainee
func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case "":
		return UserRoleTrainee, nil
	case UserRoleTrainee, UserRoleEmployee, UserRoleAdmin:
		return UserRole(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User 用户实体
type User struct {
	ID             uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Username       string     `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Email          string     `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	HashedPassword string     `json:"-" gorm:"type:varchar(255);not null"`
	FullName       string     `json:"full_name,omitempty" gorm:"type:varchar(100)"`
	Role           UserRole   `json:"role" gorm:"type:varchar(20);default:'trainee'"`
	IsActive       bool       `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// NewUser 创建新用户
func NewUser(username, email, fullName string, role UserRole) *User {
	return &User{
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

// IsAdmin 检查用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// HasRole 管理员满足任何角色要求
func HasRole(actual, required UserRole) bool {
	return actual == required || actual == UserRoleAdmin
}

// SetPassword 设置并散列密码
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.HashedPassword = string(hash)
	return nil
}

// CheckPassword 校验密码
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	return err == nil
}
