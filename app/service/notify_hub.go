package service

import (
	"fmt"
	"sync"
	"time"

	"streamvault/app/logger"
	"streamvault/app/model"
)

// ProgressEvent 处理进度事件，通过 SSE 推送给订阅者
// 事件即发即弃：不持久化、不重放，晚加入的订阅者收不到之前的事件。
type ProgressEvent struct {
	VideoID           uint      `json:"videoId"`
	Title             string    `json:"title"`
	Progress          int       `json:"progress"`
	Status            string    `json:"status"`
	Message           string    `json:"message"`
	SensitivityStatus string    `json:"sensitivityStatus"`
	Duration          int       `json:"duration,omitempty"`
	Thumbnail         string    `json:"thumbnail,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Subscription 一个订阅者持有的事件通道
type Subscription struct {
	C      chan ProgressEvent
	groups []string
}

// NotifyHub 进度通知分发中心
// 订阅者按组（user:<id> 和 tenant:<id>）登记，事件发布到视频所有者
// 和所属租户两个组。投递为尽力而为：通道写满时直接丢弃，慢订阅者
// 不会阻塞处理管线。
type NotifyHub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
	log    *logger.Logger
}

// NewNotifyHub 创建通知分发中心
func NewNotifyHub(log *logger.Logger) *NotifyHub {
	return &NotifyHub{
		groups: make(map[string]map[*Subscription]struct{}),
		log:    log,
	}
}

// UserGroup 用户私有组的组名
func UserGroup(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// TenantGroup 租户共享组的组名
func TenantGroup(tenantID string) string {
	return "tenant:" + tenantID
}

// Subscribe 加入若干组并返回订阅
func (h *NotifyHub) Subscribe(groups ...string) *Subscription {
	sub := &Subscription{
		C:      make(chan ProgressEvent, 16),
		groups: groups,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, group := range groups {
		if h.groups[group] == nil {
			h.groups[group] = make(map[*Subscription]struct{})
		}
		h.groups[group][sub] = struct{}{}
	}

	return sub
}

// Unsubscribe 退出所有组并关闭事件通道
func (h *NotifyHub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, group := range sub.groups {
		if members, ok := h.groups[group]; ok {
			delete(members, sub)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
	close(sub.C)
}

// Publish 向视频所有者和所属租户两个组发布事件
// 同一订阅者即使同时在两个组中也只收到一次。
func (h *NotifyHub) Publish(ownerID uint, tenantID string, event ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := make(map[*Subscription]struct{})
	for _, group := range []string{UserGroup(ownerID), TenantGroup(tenantID)} {
		for sub := range h.groups[group] {
			if _, done := delivered[sub]; done {
				continue
			}
			delivered[sub] = struct{}{}

			select {
			case sub.C <- event:
			default:
				// 订阅者消费过慢，丢弃事件
				h.log.Warnf("订阅者通道已满，丢弃进度事件: VideoID=%d, Progress=%d", event.VideoID, event.Progress)
			}
		}
	}
}

// PublishProgress 根据视频记录构造并发布进度事件
func (h *NotifyHub) PublishProgress(video *model.Video, progress int, status, message string) {
	h.Publish(video.UploadedBy, video.TenantID, ProgressEvent{
		VideoID:           video.ID,
		Title:             video.Title,
		Progress:          progress,
		Status:            status,
		Message:           message,
		SensitivityStatus: video.SensitivityStatus,
		Duration:          video.Duration,
		Thumbnail:         video.Thumbnail,
		Timestamp:         time.Now(),
	})
}
