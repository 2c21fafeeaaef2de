// Package filewatcher 监控上传目录，发现媒体文件被外部删除时修正视频状态
package filewatcher

import (
	"path/filepath"
	"sync"

	"streamvault/app/logger"
	"streamvault/app/model"

	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"
)

// UploadWatcher 上传目录监控器
// 视频文件可能被运维脚本或宿主机操作直接删除，监控器把受影响的
// 视频记录标记为失败，避免后续的播放请求反复读取不存在的文件。
type UploadWatcher struct {
	dir     string
	db      *gorm.DB
	logger  *logger.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New 创建上传目录监控器
func New(dir string, db *gorm.DB, log *logger.Logger) (*UploadWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &UploadWatcher{
		dir:     dir,
		db:      db,
		logger:  log,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start 开始监控
func (w *UploadWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Infof("上传目录监控已启动: %s", w.dir)
	return nil
}

// Stop 停止监控
func (w *UploadWatcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// loop 事件处理循环
func (w *UploadWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleRemoved(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("文件监控错误: %v", err)
		}
	}
}

// handleRemoved 处理媒体文件被删除的情况
func (w *UploadWatcher) handleRemoved(path string) {
	filename := filepath.Base(path)

	var video model.Video
	if err := w.db.Where("filename = ?", filename).First(&video).Error; err != nil {
		// 不是已登记的视频文件，忽略
		return
	}

	w.logger.Warnf("视频文件被外部删除: VideoID=%d, Path=%s", video.ID, path)

	// 已完成的视频失去媒体文件后无法再播放，标记为失败
	if err := w.db.Model(&video).Updates(map[string]interface{}{
		"status":              model.VideoStatusFailed,
		"processing_progress": 0,
	}).Error; err != nil {
		w.logger.Errorf("标记视频失败状态出错: VideoID=%d, 错误: %v", video.ID, err)
	}
}
