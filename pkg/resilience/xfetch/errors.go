package xfetch

import "errors"

var (
	// ErrTooManyJobs 用户活跃任务数已达上限。
	ErrTooManyJobs = errors.New("xfetch: too many active jobs")

	// ErrProviderUnavailable 提供方熔断器处于打开状态。
	ErrProviderUnavailable = errors.New("xfetch: provider unavailable")

	// ErrNilFunc Run 的 fn 为 nil。
	ErrNilFunc = errors.New("xfetch: function is nil")
)

// rejectedError 准入拒绝，不可重试。
type rejectedError struct {
	err error
}

func (e *rejectedError) Error() string   { return e.err.Error() }
func (e *rejectedError) Unwrap() error   { return e.err }
func (e *rejectedError) Retryable() bool { return false }
