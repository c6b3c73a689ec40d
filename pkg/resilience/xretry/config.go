package xretry

import (
	"fmt"
	"time"
)

// RetryConfig 重试参数。值对象，由调用方提供，本包从不修改。
type RetryConfig struct {
	// MaxRetries 最大重试次数（不含首次尝试），>= 0
	MaxRetries int `koanf:"max_retries" json:"max_retries"`

	// BaseDelay 第 0 次重试的基础延迟，> 0
	BaseDelay time.Duration `koanf:"base_delay" json:"base_delay"`

	// MaxDelay 确定性部分的上限，>= BaseDelay
	MaxDelay time.Duration `koanf:"max_delay" json:"max_delay"`

	// Jitter 叠加随机抖动的上限，>= 0
	Jitter time.Duration `koanf:"jitter" json:"jitter"`
}

// DefaultRetryConfig 返回默认重试参数：
//   - MaxRetries: 3
//   - BaseDelay: 1s
//   - MaxDelay: 60s
//   - Jitter: 250ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     250 * time.Millisecond,
	}
}

// FromMillis 以毫秒整数构造 RetryConfig。
func FromMillis(maxRetries int, baseMs, maxMs, jitterMs int64) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Duration(baseMs) * time.Millisecond,
		MaxDelay:   time.Duration(maxMs) * time.Millisecond,
		Jitter:     time.Duration(jitterMs) * time.Millisecond,
	}
}

// Validate 校验参数取值范围。
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.BaseDelay <= 0:
		return fmt.Errorf("%w: base_delay must be > 0, got %s", ErrInvalidConfig, c.BaseDelay)
	case c.MaxDelay < c.BaseDelay:
		return fmt.Errorf("%w: max_delay %s is below base_delay %s", ErrInvalidConfig, c.MaxDelay, c.BaseDelay)
	case c.Jitter < 0:
		return fmt.Errorf("%w: jitter must be >= 0, got %s", ErrInvalidConfig, c.Jitter)
	}
	return nil
}
