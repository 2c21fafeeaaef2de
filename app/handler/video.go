package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"streamvault/app/config"
	"streamvault/app/database"
	"streamvault/app/logger"
	"streamvault/app/middleware"
	"streamvault/app/model"
	"streamvault/app/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VideoHandler 视频管理处理器
type VideoHandler struct {
	config    *config.Config
	logger    *logger.Logger
	processor *service.VideoProcessor
}

// NewVideoHandler 创建视频管理处理器
func NewVideoHandler(cfg *config.Config, log *logger.Logger, processor *service.VideoProcessor) *VideoHandler {
	return &VideoHandler{
		config:    cfg,
		logger:    log,
		processor: processor,
	}
}

// 创建成功响应
func (h *VideoHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func (h *VideoHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// loadVideo 按路径参数查找视频并做租户隔离检查
func (h *VideoHandler) loadVideo(c *gin.Context, principal model.Principal) (*model.Video, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的视频ID")
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

// Upload 上传视频（编辑者和管理员）
func (h *VideoHandler) Upload(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	file, err := c.FormFile("video")
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "未上传视频文件")
		return
	}

	// 检查文件大小限制
	maxBytes := int64(h.config.Storage.MaxUploadMB) * 1024 * 1024
	if file.Size > maxBytes {
		h.error(c, http.StatusBadRequest, 400, "视频文件超出大小限制")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		h.error(c, http.StatusBadRequest, 400, "标题不能为空")
		return
	}

	// 以随机文件名落盘，避免不同用户的同名文件冲突
	filename := uuid.NewString() + filepath.Ext(file.Filename)
	savePath := filepath.Join(h.config.Storage.UploadDir, filename)
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		h.logger.Errorf("保存上传文件失败: %v", err)
		h.error(c, http.StatusInternalServerError, 500, "保存上传文件失败")
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	video := model.Video{
		Title:             title,
		Description:       c.PostForm("description"),
		Filename:          filename,
		OriginalName:      file.Filename,
		FilePath:          savePath,
		MimeType:          mimeType,
		Size:              file.Size,
		Status:            model.VideoStatusPending,
		SensitivityStatus: model.SensitivityUnknown,
		UploadedBy:        principal.UserID,
		TenantID:          principal.TenantID,
	}

	if err := database.GetDB().Create(&video).Error; err != nil {
		// 入库失败时清理已落盘的文件
		os.Remove(savePath)
		h.logger.Errorf("创建视频记录失败: %v", err)
		h.error(c, http.StatusInternalServerError, 500, "创建视频记录失败")
		return
	}

	// 触发异步处理，不等待完成
	h.processor.Submit(video.ID)

	c.JSON(http.StatusCreated, ApiResponse{
		Code:    0,
		Message: "视频上传成功",
		Data:    video,
	})
}

// List 获取当前租户的视频列表
func (h *VideoHandler) List(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	query := database.GetDB().Where("tenant_id = ?", principal.TenantID)

	// 观看者只能看到自己上传的视频
	if principal.Role == model.RoleViewer {
		query = query.Where("uploaded_by = ?", principal.UserID)
	}

	// 状态过滤
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	// 敏感度过滤
	if sensitivity := c.Query("sensitivity_status"); sensitivity != "" {
		query = query.Where("sensitivity_status = ?", sensitivity)
	}

	var videos []model.Video
	if err := query.Order("created_at DESC").Preload("Uploader").Find(&videos).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询视频列表失败")
		return
	}

	h.success(c, gin.H{
		"count":  len(videos),
		"videos": videos,
	}, "success")
}

// Get 获取单个视频
func (h *VideoHandler) Get(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	video, ok := h.loadVideo(c, principal)
	if !ok {
		return
	}

	if err := database.GetDB().Preload("Uploader").First(video, video.ID).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询视频失败")
		return
	}

	h.success(c, video, "success")
}

// Delete 删除视频（编辑者和管理员）
func (h *VideoHandler) Delete(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	video, ok := h.loadVideo(c, principal)
	if !ok {
		return
	}

	if !principal.CanManage(video) {
		h.error(c, http.StatusForbidden, 403, "只能删除自己上传的视频")
		return
	}

	// 处理任务执行期间拒绝删除，避免任务继续写已删除记录的字段
	if h.processor.IsProcessing(video.ID) {
		h.error(c, http.StatusConflict, 409, "视频正在处理中，无法删除")
		return
	}

	// 删除磁盘文件
	if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
		h.logger.Warnf("删除视频文件失败: VideoID=%d, 错误: %v", video.ID, err)
	}

	// 删除数据库记录
	if err := database.GetDB().Delete(video).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "删除视频记录失败")
		return
	}

	h.success(c, nil, "视频删除成功")
}

// Reprocess 重新处理视频（编辑者和管理员）
// 仅对已到达终态的视频有效，不是对执行中任务的取消。
func (h *VideoHandler) Reprocess(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	video, ok := h.loadVideo(c, principal)
	if !ok {
		return
	}

	if !principal.CanManage(video) {
		h.error(c, http.StatusForbidden, 403, "只能重新处理自己上传的视频")
		return
	}

	if !video.IsTerminal() || h.processor.IsProcessing(video.ID) {
		h.error(c, http.StatusConflict, 409, "视频正在处理中")
		return
	}

	// 重置状态后重新提交
	if err := database.GetDB().Model(video).Updates(map[string]interface{}{
		"status":              model.VideoStatusPending,
		"processing_progress": 0,
	}).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "重置视频状态失败")
		return
	}

	h.processor.Submit(video.ID)

	h.success(c, nil, "视频已重新提交处理")
}
