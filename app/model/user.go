package model

import (
	"time"

	"gorm.io/gorm"
)

// 角色常量
const (
	RoleViewer = "viewer" // 观看者，只能访问自己上传的视频
	RoleEditor = "editor" // 编辑者，可上传/删除/重新处理自己的视频
	RoleAdmin  = "admin"  // 管理员，可管理租户内所有视频
)

// User 用户模型
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	Name      string         `json:"name" gorm:"not null"`
	Email     string         `json:"email" gorm:"uniqueIndex;not null"`
	Password  string         `json:"-" gorm:"not null"` // json:"-" 确保密码不会被序列化
	TenantID  string         `json:"tenant_id" gorm:"not null;index"`
	Role      string         `json:"role" gorm:"size:20;default:viewer"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Principal 已认证的请求主体，由 JWT 中间件注入上下文
type Principal struct {
	UserID   uint   `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// IsUploader 检查主体是否有上传权限
func (p Principal) IsUploader() bool {
	return p.Role == RoleEditor || p.Role == RoleAdmin
}

// CanManage 检查主体是否可以管理（删除/重新处理）指定视频
// 管理员可管理租户内所有视频，编辑者只能管理自己上传的视频
func (p Principal) CanManage(v *Video) bool {
	if v.TenantID != p.TenantID {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleEditor && v.UploadedBy == p.UserID
}

// CanView 检查主体是否可以访问指定视频
// 观看者只能访问自己上传的视频，编辑者和管理员可访问租户内所有视频
func (p Principal) CanView(v *Video) bool {
	if v.TenantID != p.TenantID {
		return false
	}
	if p.Role == RoleViewer {
		return v.UploadedBy == p.UserID
	}
	return true
}
