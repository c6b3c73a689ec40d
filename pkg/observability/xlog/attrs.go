package xlog

import (
	"fmt"
	"log/slog"
	"time"
)

// 标准字段名
const (
	KeyError    = "error"
	KeyDuration = "duration"
	KeyTraceID  = "trace_id"
	KeySpanID   = "span_id"
	KeyJobID    = "job_id"
	KeyUserID   = "user_id"
	KeyProvider = "provider"
	KeyCategory = "category"
	KeyAttempt  = "attempt"
	KeyDelay    = "delay"
	KeyState    = "state"
)

// Err 创建错误属性；err 为 nil 时返回空属性，slog 会忽略它。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出人类可读格式。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// JobID 创建任务 ID 属性
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// UserID 创建用户 ID 属性
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// Provider 创建提供方属性
func Provider(key string) slog.Attr {
	return slog.String(KeyProvider, key)
}

// Category 创建失败类别属性。接受 fmt.Stringer，xlog 不依赖分类包。
func Category(c fmt.Stringer) slog.Attr {
	if c == nil {
		return slog.Attr{}
	}
	return slog.String(KeyCategory, c.String())
}

// Attempt 创建重试序号属性（从 0 开始）
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Delay 创建退避延迟属性，单位毫秒。
func Delay(d time.Duration) slog.Attr {
	return slog.Int64(KeyDelay+"_ms", d.Milliseconds())
}

// State 创建熔断状态属性
func State(s fmt.Stringer) slog.Attr {
	return slog.String(KeyState, s.String())
}
