package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"streamvault/app/config"
	"streamvault/app/logger"

	"github.com/disintegration/imaging"
)

// MediaInspector 媒体文件探测能力
// 处理管线通过该接口获取视频时长和真实缩略图；任何错误都由调用方降级到兜底策略。
type MediaInspector interface {
	// Duration 返回视频时长（秒）
	Duration(ctx context.Context, filePath string) (int, error)
	// Thumbnail 截取视频帧并返回 JPEG data URI
	Thumbnail(ctx context.Context, filePath string) (string, error)
}

// FFmpegInspector 基于 ffmpeg/ffprobe 外部工具的媒体探测实现
type FFmpegInspector struct {
	cfg *config.ProcessingConfig
	log *logger.Logger
}

// NewFFmpegInspector 创建 ffmpeg 媒体探测器
func NewFFmpegInspector(cfg *config.ProcessingConfig, log *logger.Logger) *FFmpegInspector {
	return &FFmpegInspector{
		cfg: cfg,
		log: log,
	}
}

// Duration 使用 ffprobe 读取视频时长
func (f *FFmpegInspector) Duration(ctx context.Context, filePath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		filePath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe 执行失败: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("解析 ffprobe 输出失败: %w", err)
	}

	return int(seconds), nil
}

// Thumbnail 使用 ffmpeg 在第2秒截帧，缩放后编码为 JPEG data URI
func (f *FFmpegInspector) Thumbnail(ctx context.Context, filePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ToolTimeout)
	defer cancel()

	// 每次调用使用独立的临时文件，并发任务之间互不干扰
	tmp, err := os.CreateTemp("", "streamvault-frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpFile := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpFile)

	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath,
		"-ss", "2",
		"-i", filePath,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		tmpFile,
	)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg 截帧失败: %w", err)
	}

	frame, err := imaging.Open(tmpFile)
	if err != nil {
		return "", fmt.Errorf("读取截帧图片失败: %w", err)
	}

	// 等比缩放到 320 宽
	frame = imaging.Resize(frame, 320, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("编码缩略图失败: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
