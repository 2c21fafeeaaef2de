// Package thumbnail 生成视频的占位缩略图
// 当 ffmpeg 不可用或截帧失败时，用渐变底图加标题文字生成一张占位图，
// 以 data URI 形式嵌入视频记录。
package thumbnail

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"math/rand"

	"github.com/fogleman/gg"
)

const (
	width  = 320
	height = 180

	maxTitleLen = 24 // 标题过长时截断
)

// 渐变色板，每项为起止两种颜色 (RGB 0-1)
var palette = [][2][3]float64{
	{{0.26, 0.42, 0.96}, {0.55, 0.23, 0.93}}, // 蓝→紫
	{{0.93, 0.35, 0.14}, {0.98, 0.75, 0.18}}, // 橙→黄
	{{0.13, 0.69, 0.50}, {0.10, 0.42, 0.69}}, // 绿→蓝
	{{0.86, 0.21, 0.47}, {0.54, 0.15, 0.68}}, // 粉→紫
	{{0.20, 0.26, 0.36}, {0.42, 0.48, 0.60}}, // 深灰→浅灰
}

// Placeholder 生成占位缩略图并返回 PNG data URI
func Placeholder(title string) (string, error) {
	colors := palette[rand.Intn(len(palette))]

	dc := gg.NewContext(width, height)

	// 绘制渐变背景
	grad := gg.NewLinearGradient(0, 0, width, height)
	grad.AddColorStop(0, floatRGB(colors[0]))
	grad.AddColorStop(1, floatRGB(colors[1]))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, width, height)
	dc.Fill()

	// 居中绘制截断后的标题
	label := title
	if runes := []rune(label); len(runes) > maxTitleLen {
		label = string(runes[:maxTitleLen]) + "..."
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(label, width/2, height/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// floatRGB 将 0-1 浮点 RGB 转换为 color.Color
func floatRGB(c [3]float64) color.Color {
	return color.RGBA{
		R: uint8(c[0] * 255),
		G: uint8(c[1] * 255),
		B: uint8(c[2] * 255),
		A: 255,
	}
}
