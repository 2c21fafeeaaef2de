package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamvault/app/config"
	"streamvault/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Video{}))
	return db
}

func testProcessor(t *testing.T, db *gorm.DB) (*VideoProcessor, *NotifyHub) {
	t.Helper()
	hub := NewNotifyHub(testLogger())
	cfg := &config.ProcessingConfig{
		StageDelay:  time.Millisecond,
		ToolTimeout: time.Second,
	}
	return NewVideoProcessor(db, cfg, testLogger(), hub, nil), hub
}

// createVideo 写入一条测试视频记录，sizeBytes<0 时不创建媒体文件
func createVideo(t *testing.T, db *gorm.DB, title string, sizeBytes int) *model.Video {
	t.Helper()

	filePath := filepath.Join(t.TempDir(), "video.mp4")
	size := int64(sizeBytes)
	if sizeBytes >= 0 {
		require.NoError(t, os.WriteFile(filePath, make([]byte, sizeBytes), 0644))
	} else {
		size = 1024
	}

	video := &model.Video{
		Title:             title,
		Filename:          "video.mp4",
		OriginalName:      "video.mp4",
		FilePath:          filePath,
		MimeType:          "video/mp4",
		Size:              size,
		Status:            model.VideoStatusPending,
		SensitivityStatus: model.SensitivityUnknown,
		UploadedBy:        1,
		TenantID:          "acme",
	}
	require.NoError(t, db.Create(video).Error)
	return video
}

func reload(t *testing.T, db *gorm.DB, id uint) *model.Video {
	t.Helper()
	var video model.Video
	require.NoError(t, db.First(&video, id).Error)
	return &video
}

func TestProcessorCompletesTestTitle(t *testing.T) {
	db := testDB(t)
	processor, _ := testProcessor(t, db)

	video := createVideo(t, db, "test-clip", 4096)

	require.True(t, processor.Submit(video.ID))
	processor.Wait()

	got := reload(t, db, video.ID)
	assert.Equal(t, model.VideoStatusCompleted, got.Status)
	assert.Equal(t, 100, got.ProcessingProgress)
	// 标题包含 test 的视频恒定判定为安全
	assert.Equal(t, model.SensitivitySafe, got.SensitivityStatus)
	assert.GreaterOrEqual(t, got.Duration, 10)
	assert.LessOrEqual(t, got.Duration, 3600)
	assert.NotEmpty(t, got.Thumbnail)
}

func TestProcessorMissingFile(t *testing.T) {
	db := testDB(t)
	processor, hub := testProcessor(t, db)

	sub := hub.Subscribe(TenantGroup("acme"))
	defer hub.Unsubscribe(sub)

	video := createVideo(t, db, "missing", -1)

	require.True(t, processor.Submit(video.ID))
	processor.Wait()

	got := reload(t, db, video.ID)
	assert.Equal(t, model.VideoStatusFailed, got.Status)
	assert.Equal(t, 0, got.ProcessingProgress)
	// 失败任务不产生分类结果
	assert.Equal(t, model.SensitivityUnknown, got.SensitivityStatus)

	// 只有一个失败事件，没有任何阶段事件
	event := recvEvent(t, sub.C)
	assert.Equal(t, model.VideoStatusFailed, event.Status)
	assert.Empty(t, sub.C)
}

func TestProcessorProgressMonotonic(t *testing.T) {
	db := testDB(t)
	processor, hub := testProcessor(t, db)

	sub := hub.Subscribe(UserGroup(1))
	defer hub.Unsubscribe(sub)

	video := createVideo(t, db, "假期视频 test", 4096)

	require.True(t, processor.Submit(video.ID))
	processor.Wait()

	last := -1
	final := ""
	for {
		select {
		case event := <-sub.C:
			assert.GreaterOrEqual(t, event.Progress, last)
			last = event.Progress
			final = event.Status
			continue
		default:
		}
		break
	}

	assert.Equal(t, 100, last)
	assert.Equal(t, model.VideoStatusCompleted, final)
}

func TestProcessorRejectsDuplicateSubmit(t *testing.T) {
	db := testDB(t)
	processor, _ := testProcessor(t, db)
	processor.cfg.StageDelay = 50 * time.Millisecond

	video := createVideo(t, db, "test-dup", 4096)

	require.True(t, processor.Submit(video.ID))
	// 任务执行期间的重复提交被拒绝
	assert.False(t, processor.Submit(video.ID))
	assert.True(t, processor.IsProcessing(video.ID))

	processor.Wait()

	got := reload(t, db, video.ID)
	assert.Equal(t, model.VideoStatusCompleted, got.Status)
	assert.Equal(t, 100, got.ProcessingProgress)
	assert.False(t, processor.IsProcessing(video.ID))
}

func TestProcessorUnknownVideo(t *testing.T) {
	db := testDB(t)
	processor, hub := testProcessor(t, db)

	sub := hub.Subscribe(TenantGroup("acme"))
	defer hub.Unsubscribe(sub)

	// 不存在的记录只记日志，不发事件
	require.True(t, processor.Submit(9999))
	processor.Wait()

	assert.Empty(t, sub.C)
}

func TestClassify(t *testing.T) {
	db := testDB(t)
	processor, _ := testProcessor(t, db)

	// 标题包含 test（不区分大小写）恒定安全
	assert.Equal(t, model.SensitivitySafe, processor.classify("My TEST clip"))

	// 随机值大于 0.2 判定安全，否则标记
	processor.randFloat = func() float64 { return 0.9 }
	assert.Equal(t, model.SensitivitySafe, processor.classify("假期视频"))

	processor.randFloat = func() float64 { return 0.1 }
	assert.Equal(t, model.SensitivityFlagged, processor.classify("假期视频"))

	// 即使随机值落在标记区间，test 标题仍然安全
	assert.Equal(t, model.SensitivitySafe, processor.classify("test-clip"))
}

func TestEstimateDuration(t *testing.T) {
	// 约 2MB/秒，20MB → 10 秒
	assert.Equal(t, 10, estimateDuration(20*1024*1024))
	// 小文件收敛到下限 10 秒
	assert.Equal(t, 10, estimateDuration(1024))
	// 大文件收敛到上限 3600 秒
	assert.Equal(t, 3600, estimateDuration(10_000*1024*1024))
	// 中间值按大小估算
	assert.Equal(t, 100, estimateDuration(200*1024*1024))
}

func TestSweeperResetsOrphanedProcessing(t *testing.T) {
	db := testDB(t)
	processor, _ := testProcessor(t, db)

	video := createVideo(t, db, "orphan", 4096)
	require.NoError(t, db.Model(video).Update("status", model.VideoStatusProcessing).Error)

	// 没有对应的执行中任务，清理后进入失败终态
	processor.sweep()

	got := reload(t, db, video.ID)
	assert.Equal(t, model.VideoStatusFailed, got.Status)
}
