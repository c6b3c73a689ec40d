package xretry

import "errors"

var (
	// ErrInvalidConfig RetryConfig 取值非法。
	ErrInvalidConfig = errors.New("xretry: invalid retry config")

	// ErrNilRetryer 接收者为 nil。
	ErrNilRetryer = errors.New("xretry: retryer is nil")

	// ErrNilContext 传入的 context 为 nil。
	ErrNilContext = errors.New("xretry: context is nil")

	// ErrNilFunc 传入的操作函数为 nil。
	ErrNilFunc = errors.New("xretry: function is nil")
)

// RetryableError 可自行声明是否可重试的错误。
//
// 优先级高于按类别判断，例如熔断器拒绝请求时返回的错误声明为不可重试，
// 避免在熔断期间继续退避重试。
type RetryableError interface {
	error
	Retryable() bool
}

// retryableOverride 沿错误链查找 RetryableError。
func retryableOverride(err error) (retryable, ok bool) {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable(), true
	}
	return false, false
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// TemporaryError 临时性错误（应该重试），即使其文本会被归为 permanent。
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

// IsRetryableError 只看 RetryableError 声明判断 err 是否可重试：
//   - nil 错误：不需要重试
//   - 实现 RetryableError：以 Retryable() 为准
//   - 其他错误：视为可重试
//
// 需要结合失败类别时使用 [Retryer.Retryable]。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if retryable, ok := retryableOverride(err); ok {
		return retryable
	}
	return true
}

// IsPermanent 检查错误是否声明为不可重试
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsRetryableError(err)
}
