package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"streamvault/app/auth"
	"streamvault/app/config"
	"streamvault/app/database"
	"streamvault/app/logger"
	"streamvault/app/middleware"
	"streamvault/app/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			ExpireTime: 1,
			Issuer:     "streamvault-test",
		},
	}
}

func setupStreamRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Video{}))
	database.DB = db

	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	streamHandler := NewStreamHandler(log)

	router := gin.New()
	stream := router.Group("/stream")
	stream.Use(middleware.StreamAuth(testConfig()))
	{
		stream.GET("/:id", streamHandler.Stream)
		stream.GET("/:id/info", streamHandler.Info)
	}
	return router, db
}

func streamToken(t *testing.T, userID uint, tenantID, role string) string {
	t.Helper()
	token, err := auth.NewJWTService(testConfig()).GenerateToken(userID, tenantID, role)
	require.NoError(t, err)
	return token
}

// createStreamVideo 写入一条指定状态的视频记录，内容为 0..size-1 模 251 的字节序列
func createStreamVideo(t *testing.T, db *gorm.DB, status string, size int) *model.Video {
	t.Helper()

	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	filePath := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(filePath, content, 0644))

	video := &model.Video{
		Title:             "test-clip",
		Filename:          "video.mp4",
		OriginalName:      "video.mp4",
		FilePath:          filePath,
		MimeType:          "video/mp4",
		Size:              int64(size),
		Status:            status,
		SensitivityStatus: model.SensitivitySafe,
		UploadedBy:        1,
		TenantID:          "acme",
	}
	if status == model.VideoStatusCompleted {
		video.ProcessingProgress = 100
	}
	require.NoError(t, db.Create(video).Error)
	return video
}

func doStream(router *gin.Engine, url, token, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url+"?token="+token, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStreamFullContent(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Len(t, w.Body.Bytes(), 500)
	assert.Equal(t, byte(0), w.Body.Bytes()[0])
	assert.Equal(t, byte(499%251), w.Body.Bytes()[499])
}

func TestStreamPartialContent(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "bytes=10-19")

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 10-19/500", w.Header().Get("Content-Range"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))

	body := w.Body.Bytes()
	require.Len(t, body, 10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, byte((10+i)%251), body[i])
	}
}

func TestStreamOpenEndedRange(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "bytes=490-")

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 490-499/500", w.Header().Get("Content-Range"))
	assert.Len(t, w.Body.Bytes(), 10)
}

func TestStreamRangeNotSatisfiable(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "bytes=1000-1999")

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */500", w.Header().Get("Content-Range"))
	assert.Empty(t, w.Body.Bytes())
}

func TestStreamMalformedRange(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	// 非数字的区间按无法满足处理
	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "bytes=abc-def")

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */500", w.Header().Get("Content-Range"))
}

func TestStreamNotCompleted(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusProcessing, 500)
	require.NoError(t, db.Model(video).Update("processing_progress", 40).Error)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")

	// 未完成的视频返回 400，附当前状态和进度供客户端轮询
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, model.VideoStatusProcessing, body["status"])
	assert.Equal(t, float64(40), body["progress"])
}

func TestStreamCrossTenantForbidden(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 2, "other-tenant", model.RoleAdmin)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStreamViewerCannotAccessOthersVideo(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	// 同租户的另一个观看者
	token := streamToken(t, 2, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStreamUnknownVideo(t *testing.T) {
	router, _ := setupStreamRouter(t)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, "/stream/9999", token, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamFileRemovedAfterCompletion(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	require.NoError(t, os.Remove(video.FilePath))
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamMissingToken(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/stream/%d", video.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamIncrementsViews(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "")
	doStream(router, fmt.Sprintf("/stream/%d", video.ID), token, "bytes=0-9")

	var got model.Video
	require.NoError(t, db.First(&got, video.ID).Error)
	assert.Equal(t, int64(2), got.Views)
}

func TestStreamInfo(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusCompleted, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d/info", video.ID), token, "")

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Streaming struct {
			Available bool   `json:"available"`
			FileSize  int64  `json:"fileSize"`
			StreamURL string `json:"streamUrl"`
		} `json:"streaming"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Streaming.Available)
	assert.Equal(t, int64(500), body.Streaming.FileSize)
	assert.Equal(t, fmt.Sprintf("/stream/%d", video.ID), body.Streaming.StreamURL)
}

func TestStreamInfoNotReady(t *testing.T) {
	router, db := setupStreamRouter(t)
	video := createStreamVideo(t, db, model.VideoStatusPending, 500)
	token := streamToken(t, 1, "acme", model.RoleViewer)

	w := doStream(router, fmt.Sprintf("/stream/%d/info", video.ID), token, "")

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Streaming struct {
			Available bool `json:"available"`
		} `json:"streaming"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Streaming.Available)
}
