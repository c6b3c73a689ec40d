package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"

	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
)

// rateLimitMultiplier 限流类别的退避倍数，作用在截断之前的指数值上。
const rateLimitMultiplier = 3

// IsRetryable 判断该类别的失败是否值得重试。
func IsRetryable(c xclassify.Category) bool {
	switch c {
	case xclassify.Permanent, xclassify.AuthFailure:
		return false
	default:
		return true
	}
}

// ShouldRetry 判断第 attempt 次重试（从 0 开始）是否还在预算内且类别可重试。
func ShouldRetry(attempt int, c xclassify.Category, cfg RetryConfig) bool {
	if attempt < 0 {
		attempt = 0
	}
	return IsRetryable(c) && attempt < cfg.MaxRetries
}

// NextDelay 计算第 attempt 次重试（从 0 开始）前的等待时长。
//
//	delay = min(BaseDelay * 2^attempt * m, MaxDelay) + rand[0, Jitter]
//
// rate_limit 时 m=3，其余 m=1。负数 attempt 视为 0；
// MaxDelay 小于 BaseDelay 时以 BaseDelay 为上限。
func NextDelay(attempt int, c xclassify.Category, cfg RetryConfig) time.Duration {
	return deterministicDelay(attempt, c, cfg) + randomJitter(cfg.Jitter)
}

// NextDelayMs 与 NextDelay 相同，以毫秒返回。
func NextDelayMs(attempt int, c xclassify.Category, cfg RetryConfig) int64 {
	return NextDelay(attempt, c, cfg).Milliseconds()
}

// deterministicDelay 返回不含抖动的部分。
func deterministicDelay(attempt int, c xclassify.Category, cfg RetryConfig) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	ceiling := max(cfg.MaxDelay, cfg.BaseDelay)

	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if c == xclassify.RateLimit {
		delay *= rateLimitMultiplier
	}
	// 大 attempt 时 Pow 溢出为 +Inf，直接按上限处理
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(delay)
}

// randomJitter 返回 [0, limit) 内均匀分布的随机时长，limit <= 0 时为 0。
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(randomFloat64() * float64(limit))
}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时不加抖动
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
