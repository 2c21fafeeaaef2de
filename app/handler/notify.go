package handler

import (
	"io"
	"net/http"

	"streamvault/app/logger"
	"streamvault/app/middleware"
	"streamvault/app/service"

	"github.com/gin-gonic/gin"
)

// NotifyHandler 进度通知处理器，通过 SSE 向客户端推送处理进度
type NotifyHandler struct {
	hub    *service.NotifyHub
	logger *logger.Logger
}

// NewNotifyHandler 创建进度通知处理器
func NewNotifyHandler(hub *service.NotifyHub, log *logger.Logger) *NotifyHandler {
	return &NotifyHandler{
		hub:    hub,
		logger: log,
	}
}

// Stream 订阅处理进度事件
// GET /notifications/stream，认证主体自动加入自己的用户组和租户组，
// 事件以 video:progress 为名通过 SSE 推送。连接断开即退订，错过的事件不补发。
func (h *NotifyHandler) Stream(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ApiResponse{
			Code:    401,
			Message: "未认证",
		})
		return
	}

	sub := h.hub.Subscribe(
		service.UserGroup(principal.UserID),
		service.TenantGroup(principal.TenantID),
	)
	defer h.hub.Unsubscribe(sub)

	h.logger.Infof("订阅者已连接: UserID=%d, TenantID=%s", principal.UserID, principal.TenantID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-sub.C:
			if !open {
				return false
			}
			c.SSEvent("video:progress", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.Infof("订阅者已断开: UserID=%d, TenantID=%s", principal.UserID, principal.TenantID)
}
