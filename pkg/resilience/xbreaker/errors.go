package xbreaker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShardCount 分片数不是 2 的幂或超出范围。
	ErrInvalidShardCount = errors.New("xbreaker: invalid shard count")

	// errRecordedFailure 驱动底层熔断器计数时使用的占位错误。
	errRecordedFailure = errors.New("xbreaker: recorded failure")
)

// BreakerError 熔断拒绝错误。
//
// 包装 ErrOpenState，并实现 Retryable() 返回 false，
// 使 xretry 在熔断期间不再退避重试。
type BreakerError struct {
	Err      error  // 原始错误（ErrOpenState）
	Provider string // 提供方 key
	Reason   string // 面向用户的拒绝原因
	State    State  // 拒绝时的状态
}

// Error 实现 error 接口
func (e *BreakerError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("breaker %s: %v", e.Provider, e.Err)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 熔断拒绝不应重试，需等待熔断器恢复。
func (e *BreakerError) Retryable() bool {
	return false
}

// IsOpen 检查错误是否为熔断打开错误
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpenState)
}
