package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 视频处理状态常量
const (
	VideoStatusPending    = "pending"    // 等待处理
	VideoStatusProcessing = "processing" // 处理中
	VideoStatusCompleted  = "completed"  // 处理完成
	VideoStatusFailed     = "failed"     // 处理失败
)

// 敏感度分析结果常量
const (
	SensitivityUnknown = "unknown" // 未分析
	SensitivitySafe    = "safe"    // 安全
	SensitivityFlagged = "flagged" // 已标记
)

// Video 视频模型
type Video struct {
	ID                 uint           `json:"id" gorm:"primarykey"`
	Title              string         `json:"title" gorm:"not null"`
	Description        string         `json:"description" gorm:"type:text"`
	Filename           string         `json:"filename" gorm:"not null"`
	OriginalName       string         `json:"original_name" gorm:"not null"`
	FilePath           string         `json:"-" gorm:"not null"` // 磁盘路径不对外暴露
	MimeType           string         `json:"mime_type" gorm:"not null"`
	Size               int64          `json:"size" gorm:"not null;comment:文件大小（字节）"`
	Duration           int            `json:"duration" gorm:"default:0;comment:时长（秒）"`
	Status             string         `json:"status" gorm:"size:20;default:pending;index"`
	SensitivityStatus  string         `json:"sensitivity_status" gorm:"size:20;default:unknown;index"`
	ProcessingProgress int            `json:"processing_progress" gorm:"default:0"`
	Thumbnail          string         `json:"thumbnail" gorm:"type:text;comment:缩略图 data URI"`
	UploadedBy         uint           `json:"uploaded_by" gorm:"not null;index"`
	TenantID           string         `json:"tenant_id" gorm:"not null;index"`
	Views              int64          `json:"views" gorm:"default:0"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// 关联关系
	Uploader *User `gorm:"foreignKey:UploadedBy" json:"uploader,omitempty"`
}

// TableName 指定表名
func (Video) TableName() string {
	return "videos"
}

// SizeMB 返回文件大小（MB，保留两位小数）
func (v *Video) SizeMB() string {
	return fmt.Sprintf("%.2f", float64(v.Size)/(1024*1024))
}

// IsTerminal 检查视频是否处于终态（完成或失败）
func (v *Video) IsTerminal() bool {
	return v.Status == VideoStatusCompleted || v.Status == VideoStatusFailed
}

// CanStream 检查视频是否可以流式播放
func (v *Video) CanStream() bool {
	return v.Status == VideoStatusCompleted
}
