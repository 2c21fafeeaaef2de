package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"streamvault/app/config"
	"streamvault/app/logger"
	"streamvault/app/model"
	"streamvault/app/utils/thumbnail"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// analysisStage 敏感度分析的一个阶段
type analysisStage struct {
	Progress int    // 阶段完成后的进度百分比
	Message  string // 推送给订阅者的阶段描述
}

// 分析阶段按固定顺序执行，进度单调递增
var analysisStages = []analysisStage{
	{Progress: 20, Message: "正在提取视频元数据..."},
	{Progress: 40, Message: "正在分析视频帧..."},
	{Progress: 60, Message: "正在检测敏感内容..."},
	{Progress: 80, Message: "正在生成缩略图..."},
	{Progress: 100, Message: "处理完成！"},
}

// VideoProcessor 视频处理服务
// 负责单个视频的处理状态机（pending→processing→completed/failed），
// 并保证同一视频在任意时刻最多只有一个处理任务在执行。
type VideoProcessor struct {
	db        *gorm.DB
	cfg       *config.ProcessingConfig
	log       *logger.Logger
	hub       *NotifyHub
	inspector MediaInspector

	// randFloat 为敏感度模拟分类提供随机数，测试中可替换
	randFloat func() float64

	mu       sync.Mutex
	inflight map[uint]struct{} // 执行中任务占用的视频ID
	wg       sync.WaitGroup

	sweeper *cron.Cron
}

// NewVideoProcessor 创建视频处理服务
// inspector 可以为 nil，此时时长和缩略图全部走兜底策略。
func NewVideoProcessor(db *gorm.DB, cfg *config.ProcessingConfig, log *logger.Logger, hub *NotifyHub, inspector MediaInspector) *VideoProcessor {
	return &VideoProcessor{
		db:        db,
		cfg:       cfg,
		log:       log,
		hub:       hub,
		inspector: inspector,
		randFloat: rand.Float64,
		inflight:  make(map[uint]struct{}),
	}
}

// Submit 提交处理任务，立即返回，任务在后台执行
// 同一视频已有任务在执行时，本次提交被拒绝（返回 false），
// 以保证落库的终态始终来自单次完整执行，不会出现两次执行交错写入。
func (p *VideoProcessor) Submit(videoID uint) bool {
	p.mu.Lock()
	if _, exists := p.inflight[videoID]; exists {
		p.mu.Unlock()
		p.log.Warnf("视频已在处理中，忽略重复提交: VideoID=%d", videoID)
		return false
	}
	p.inflight[videoID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, videoID)
			p.mu.Unlock()
		}()
		p.run(videoID)
	}()

	return true
}

// IsProcessing 检查视频是否有任务正在执行
func (p *VideoProcessor) IsProcessing(videoID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.inflight[videoID]
	return exists
}

// Wait 等待所有执行中的任务结束
func (p *VideoProcessor) Wait() {
	p.wg.Wait()
}

// run 执行一次完整的处理状态机
func (p *VideoProcessor) run(videoID uint) {
	var video model.Video
	if err := p.db.First(&video, videoID).Error; err != nil {
		// 记录不存在时没有可以挂载事件的对象，仅记录日志
		p.log.Errorf("处理任务找不到视频记录: VideoID=%d, 错误: %v", videoID, err)
		return
	}

	// 任务内部的 panic 转换为失败终态，绝不影响其他任务
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("处理任务发生异常: VideoID=%d, %v", videoID, r)
			p.markFailed(&video, fmt.Sprintf("处理异常: %v", r))
		}
	}()

	// 媒体文件缺失时直接进入失败终态，不开始处理
	if _, err := os.Stat(video.FilePath); err != nil {
		p.log.Errorf("视频文件不存在: VideoID=%d, Path=%s", videoID, video.FilePath)
		p.markFailed(&video, "视频文件不存在")
		return
	}

	p.log.Infof("开始处理视频: %s (VideoID=%d)", video.Title, videoID)

	// 进入处理中状态，进度归零
	if err := p.db.Model(&video).Updates(map[string]interface{}{
		"status":              model.VideoStatusProcessing,
		"processing_progress": 0,
	}).Error; err != nil {
		p.log.Errorf("更新视频状态失败: VideoID=%d, 错误: %v", videoID, err)
		p.markFailed(&video, "更新视频状态失败")
		return
	}
	video.Status = model.VideoStatusProcessing
	video.ProcessingProgress = 0
	p.hub.PublishProgress(&video, 0, model.VideoStatusProcessing, "开始分析视频...")

	// 按固定顺序执行各个分析阶段
	for _, stage := range analysisStages {
		time.Sleep(p.cfg.StageDelay)

		if err := p.db.Model(&video).Update("processing_progress", stage.Progress).Error; err != nil {
			p.log.Errorf("更新处理进度失败: VideoID=%d, 错误: %v", videoID, err)
			p.markFailed(&video, "更新处理进度失败")
			return
		}
		video.ProcessingProgress = stage.Progress
		p.hub.PublishProgress(&video, stage.Progress, model.VideoStatusProcessing, stage.Message)
	}

	// 计算分类结果、时长和缩略图
	sensitivity := p.classify(video.Title)
	duration := p.extractDuration(&video)
	thumb := p.extractThumbnail(&video)

	// 终态和产物在一次更新中落库
	if err := p.db.Model(&video).Updates(map[string]interface{}{
		"status":              model.VideoStatusCompleted,
		"sensitivity_status":  sensitivity,
		"processing_progress": 100,
		"duration":            duration,
		"thumbnail":           thumb,
	}).Error; err != nil {
		p.log.Errorf("写入处理结果失败: VideoID=%d, 错误: %v", videoID, err)
		p.markFailed(&video, "写入处理结果失败")
		return
	}

	video.Status = model.VideoStatusCompleted
	video.SensitivityStatus = sensitivity
	video.ProcessingProgress = 100
	video.Duration = duration
	video.Thumbnail = thumb
	p.hub.PublishProgress(&video, 100, model.VideoStatusCompleted, "视频已就绪，可以播放！")

	p.log.Infof("视频处理完成: %s (VideoID=%d), 分类结果: %s", video.Title, videoID, sensitivity)
}

// markFailed 将视频置为失败终态并发布失败事件
// 失败不产生任何分类结果，敏感度保持 unknown。
func (p *VideoProcessor) markFailed(video *model.Video, message string) {
	if err := p.db.Model(video).Updates(map[string]interface{}{
		"status":              model.VideoStatusFailed,
		"processing_progress": 0,
	}).Error; err != nil {
		p.log.Errorf("标记视频失败状态出错: VideoID=%d, 错误: %v", video.ID, err)
	}
	video.Status = model.VideoStatusFailed
	video.ProcessingProgress = 0
	p.hub.PublishProgress(video, 0, model.VideoStatusFailed, message)
}

// classify 模拟敏感度分析
// 标题包含 test（不区分大小写）的视频恒定为安全；
// 其余按约 80%/20% 的比例随机判定为安全/标记。
func (p *VideoProcessor) classify(title string) string {
	if strings.Contains(strings.ToLower(title), "test") {
		return model.SensitivitySafe
	}
	if p.randFloat() > 0.2 {
		return model.SensitivitySafe
	}
	return model.SensitivityFlagged
}

// extractDuration 获取视频时长，探测失败时按文件大小估算
func (p *VideoProcessor) extractDuration(video *model.Video) int {
	if p.inspector != nil {
		duration, err := p.inspector.Duration(context.Background(), video.FilePath)
		if err == nil && duration > 0 {
			return duration
		}
		if err != nil {
			p.log.Warnf("读取视频时长失败，使用估算值: VideoID=%d, 错误: %v", video.ID, err)
		}
	}
	return estimateDuration(video.Size)
}

// estimateDuration 按约 2MB/秒 的码率估算时长，限制在 [10, 3600] 秒
func estimateDuration(sizeBytes int64) int {
	estimated := int(sizeBytes / (2 * 1024 * 1024))
	if estimated < 10 {
		return 10
	}
	if estimated > 3600 {
		return 3600
	}
	return estimated
}

// extractThumbnail 获取视频缩略图，截帧失败时生成占位图
// 缩略图失败绝不导致任务失败，最坏情况下缩略图为空。
func (p *VideoProcessor) extractThumbnail(video *model.Video) string {
	if p.inspector != nil {
		thumb, err := p.inspector.Thumbnail(context.Background(), video.FilePath)
		if err == nil && thumb != "" {
			return thumb
		}
		if err != nil {
			p.log.Warnf("生成视频缩略图失败，使用占位图: VideoID=%d, 错误: %v", video.ID, err)
		}
	}

	thumb, err := thumbnail.Placeholder(video.Title)
	if err != nil {
		p.log.Warnf("生成占位缩略图失败: VideoID=%d, 错误: %v", video.ID, err)
		return ""
	}
	return thumb
}

// StartSweeper 启动僵尸任务清理器
// 服务重启后可能遗留 status=processing 但没有任何执行中任务的记录，
// 定期把它们重置为失败终态。启动时立即清理一次。
func (p *VideoProcessor) StartSweeper(spec string) error {
	p.sweep()

	c := cron.New()
	if _, err := c.AddFunc(spec, p.sweep); err != nil {
		return err
	}
	c.Start()
	p.sweeper = c
	return nil
}

// StopSweeper 停止僵尸任务清理器并等待任务结束
func (p *VideoProcessor) StopSweeper() {
	if p.sweeper != nil {
		p.sweeper.Stop()
	}
	p.wg.Wait()
}

// sweep 把没有执行中任务的 processing 记录重置为失败
func (p *VideoProcessor) sweep() {
	var videos []model.Video
	if err := p.db.Where("status = ?", model.VideoStatusProcessing).Find(&videos).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Errorf("查询僵尸处理任务失败: %v", err)
		}
		return
	}

	for i := range videos {
		video := &videos[i]
		if p.IsProcessing(video.ID) {
			continue
		}
		p.log.Warnf("发现僵尸处理任务，标记为失败: VideoID=%d", video.ID)
		p.markFailed(video, "处理任务中断")
	}
}
