package xbreaker

import (
	"fmt"
	"time"
)

const (
	// DefaultThreshold 默认连续失败阈值
	DefaultThreshold = 5

	defaultShardCount = 16
	maxShardCount     = 1 << 12

	// neverRecover 未启用冷却恢复时使用的超时，远超进程寿命。
	// 不能用 0：gobreaker 会把 0 替换为默认的 60 秒。
	neverRecover = 100 * 365 * 24 * time.Hour
)

// Option 注册表配置选项。
type Option func(*options)

type options struct {
	threshold     uint32
	cooldown      time.Duration
	shardCount    int
	onStateChange func(provider string, from, to State)
}

func defaultOptions() options {
	return options{
		threshold:  DefaultThreshold,
		shardCount: defaultShardCount,
	}
}

// WithThreshold 设置触发熔断的连续失败次数，0 被忽略。
func WithThreshold(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// WithCooldown 启用半开恢复：打开 d 之后进入 half-open，允许一次探测，
// 探测成功则关闭，失败则重新打开。d <= 0 表示不自动恢复（默认）。
func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		o.cooldown = max(d, 0)
	}
}

// WithShardCount 设置分片数量，必须为 2 的幂，上限 4096，默认 16。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

// WithOnStateChange 设置状态变化回调。
//
// 回调在持有分片锁时同步调用，必须保持轻量，且不得回调同一个 Registry。
func WithOnStateChange(f func(provider string, from, to State)) Option {
	return func(o *options) {
		o.onStateChange = f
	}
}

func (o *options) validate() error {
	sc := o.shardCount
	if sc <= 0 || sc > maxShardCount || sc&(sc-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, sc)
	}
	return nil
}

func (o *options) timeout() time.Duration {
	if o.cooldown > 0 {
		return o.cooldown
	}
	return neverRecover
}
