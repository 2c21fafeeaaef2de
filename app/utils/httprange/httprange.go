// Package httprange 解析 HTTP Range 请求头，用于视频的分段播放
package httprange

import (
	"fmt"
	"strconv"
	"strings"
)

// ResultType 区分完整响应、部分响应和无法满足的范围
type ResultType int

const (
	// Full 未携带 Range 头，应返回整个资源（200）
	Full ResultType = iota
	// Partial 合法的字节区间，应返回部分内容（206）
	Partial
	// NotSatisfiable 范围无法满足或格式错误（416）
	NotSatisfiable
)

// Result Range 头的解析结果，Start/End 为闭区间
type Result struct {
	Type  ResultType
	Start int64
	End   int64
	Total int64
}

// Length 返回区间的字节数
func (r Result) Length() int64 {
	if r.Type != Partial {
		return 0
	}
	return r.End - r.Start + 1
}

// ContentRange 格式化 206 响应的 Content-Range 头
func (r Result) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// ContentRangeUnsatisfied 格式化 416 响应的 Content-Range 头
func ContentRangeUnsatisfied(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Resolve 根据资源总长度解析 Range 头
// 仅支持 bytes=<start>-<end> 形式，<end> 可省略（表示到资源末尾）。
// 格式错误（非数字、缺少起点、多区间）一律按无法满足处理；
// start 或 end 超出资源长度同样返回 NotSatisfiable。
func Resolve(header string, total int64) Result {
	if header == "" {
		return Result{Type: Full, Total: total}
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Result{Type: NotSatisfiable, Total: total}
	}

	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// 不支持多区间
		return Result{Type: NotSatisfiable, Total: total}
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Result{Type: NotSatisfiable, Total: total}
	}

	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || start < 0 {
		return Result{Type: NotSatisfiable, Total: total}
	}

	end := total - 1
	if endStr := strings.TrimSpace(parts[1]); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return Result{Type: NotSatisfiable, Total: total}
		}
	}

	// 起点或终点超出资源长度，或区间为空
	if start >= total || end >= total || end < start {
		return Result{Type: NotSatisfiable, Total: total}
	}

	return Result{Type: Partial, Start: start, End: end, Total: total}
}
