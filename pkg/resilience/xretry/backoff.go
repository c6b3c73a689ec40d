package xretry

import (
	"time"

	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
)

// BackoffPolicy 计算重试间隔。
type BackoffPolicy interface {
	// NextDelay 返回第 attempt 次重试（从 0 开始）前的等待时长，
	// c 为上一次失败的类别。
	NextDelay(attempt int, c xclassify.Category) time.Duration
}

// CategoryBackoff 按类别退避，即以固定 RetryConfig 调用 [NextDelay]。
type CategoryBackoff struct {
	cfg RetryConfig
}

// NewCategoryBackoff 创建按类别退避策略。
func NewCategoryBackoff(cfg RetryConfig) *CategoryBackoff {
	return &CategoryBackoff{cfg: cfg}
}

// NextDelay 实现 BackoffPolicy。
func (b *CategoryBackoff) NextDelay(attempt int, c xclassify.Category) time.Duration {
	return NextDelay(attempt, c, b.cfg)
}

// Config 返回退避使用的参数。
func (b *CategoryBackoff) Config() RetryConfig {
	return b.cfg
}

// NoBackoff 无等待，主要用于测试。
type NoBackoff struct{}

// NextDelay 实现 BackoffPolicy，总是返回 0。
func (NoBackoff) NextDelay(int, xclassify.Category) time.Duration {
	return 0
}

var (
	_ BackoffPolicy = (*CategoryBackoff)(nil)
	_ BackoffPolicy = NoBackoff{}
)
