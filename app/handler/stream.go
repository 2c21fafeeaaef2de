package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"streamvault/app/database"
	"streamvault/app/logger"
	"streamvault/app/middleware"
	"streamvault/app/model"
	"streamvault/app/utils/httprange"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StreamHandler 视频流处理器，支持 HTTP Range 请求以实现拖动播放
type StreamHandler struct {
	logger *logger.Logger
}

// NewStreamHandler 创建视频流处理器
func NewStreamHandler(log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		logger: log,
	}
}

// 创建错误响应
func (h *StreamHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// loadVideo 按路径参数查找视频并做租户隔离和角色检查
func (h *StreamHandler) loadVideo(c *gin.Context) (*model.Video, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的视频ID")
		return nil, false
	}

	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		h.error(c, http.StatusUnauthorized, 401, "未认证")
		return nil, false
	}

	var video model.Video
	if err := database.GetDB().First(&video, uint(id)).Error; err != nil {
		h.error(c, http.StatusNotFound, 404, "视频不存在")
		return nil, false
	}

	if !principal.CanView(&video) {
		h.error(c, http.StatusForbidden, 403, "无权访问该视频")
		return nil, false
	}

	return &video, true
}

// Stream 流式播放视频
// GET /stream/:id，可携带 Range: bytes=<start>-<end> 请求头。
// 响应：200 完整内容 / 206 部分内容 / 416 范围无法满足 /
// 400 视频尚未处理完成（附当前状态和进度）/ 403 越权 / 404 不存在。
func (h *StreamHandler) Stream(c *gin.Context) {
	video, ok := h.loadVideo(c)
	if !ok {
		return
	}

	// 只有处理完成的视频才能播放
	if !video.CanStream() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":     400,
			"message":  "视频尚未就绪",
			"status":   video.Status,
			"progress": video.ProcessingProgress,
		})
		return
	}

	file, err := os.Open(video.FilePath)
	if err != nil {
		h.error(c, http.StatusNotFound, 404, "视频文件不存在")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "读取视频文件失败")
		return
	}
	fileSize := stat.Size()

	// 增加观看次数，与处理状态无关
	database.GetDB().Model(video).UpdateColumn("views", gorm.Expr("views + ?", 1))

	result := httprange.Resolve(c.GetHeader("Range"), fileSize)

	switch result.Type {
	case httprange.NotSatisfiable:
		c.Header("Content-Range", httprange.ContentRangeUnsatisfied(fileSize))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return

	case httprange.Partial:
		if _, err := file.Seek(result.Start, io.SeekStart); err != nil {
			h.error(c, http.StatusInternalServerError, 500, "读取视频文件失败")
			return
		}

		c.Header("Content-Range", result.ContentRange())
		c.Header("Accept-Ranges", "bytes")
		c.Header("Content-Length", fmt.Sprintf("%d", result.Length()))
		c.Header("Content-Type", video.MimeType)
		c.Header("Cache-Control", "public, max-age=3600")
		c.Status(http.StatusPartialContent)

		// 按区间长度拷贝，客户端中途断开时 CopyN 返回错误，直接结束响应
		if _, err := io.CopyN(c.Writer, file, result.Length()); err != nil {
			h.logger.Debugf("视频流传输中断: VideoID=%d, 错误: %v", video.ID, err)
		}

	default:
		c.Header("Content-Length", fmt.Sprintf("%d", fileSize))
		c.Header("Accept-Ranges", "bytes")
		c.Header("Content-Type", video.MimeType)
		c.Header("Cache-Control", "public, max-age=3600")
		c.Status(http.StatusOK)

		if _, err := io.Copy(c.Writer, file); err != nil {
			h.logger.Debugf("视频流传输中断: VideoID=%d, 错误: %v", video.ID, err)
		}
	}
}

// Info 获取视频流信息但不实际传输
// 用于客户端确认视频是否就绪并获取元数据。
func (h *StreamHandler) Info(c *gin.Context) {
	video, ok := h.loadVideo(c)
	if !ok {
		return
	}

	if err := database.GetDB().Preload("Uploader").First(video, video.ID).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询视频失败")
		return
	}

	var fileSize int64
	fileExists := false
	if stat, err := os.Stat(video.FilePath); err == nil {
		fileExists = true
		fileSize = stat.Size()
	}

	c.JSON(http.StatusOK, gin.H{
		"video":  video,
		"sizeMB": video.SizeMB(),
		"streaming": gin.H{
			"available": video.CanStream() && fileExists,
			"fileSize":  fileSize,
			"streamUrl": fmt.Sprintf("/stream/%d", video.ID),
		},
	})
}
