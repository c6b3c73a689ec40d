package xretry

import (
	"context"
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
)

// RetryEvent 描述一次即将发生的重试。
type RetryEvent struct {
	// Attempt 即将进行的重试序号（从 0 开始）
	Attempt int
	// Category 上一次失败的类别
	Category xclassify.Category
	// Err 上一次失败的错误
	Err error
}

// Retryer 按错误类别驱动的重试执行器。
//
// 每次失败先经分类器归类：不可重试的类别立即返回，
// 可重试的类别按 BackoffPolicy 等待后再次执行，最多重试 MaxRetries 次。
// 底层使用 avast/retry-go/v5。
type Retryer struct {
	cfg        RetryConfig
	backoff    BackoffPolicy
	classifier *xclassify.Classifier
	onRetry    func(RetryEvent)
}

// RetryerOption 执行器配置选项。
type RetryerOption func(*Retryer)

// WithConfig 设置重试参数，同时把退避策略重置为对应的 CategoryBackoff。
func WithConfig(cfg RetryConfig) RetryerOption {
	return func(r *Retryer) {
		r.cfg = cfg
		r.backoff = NewCategoryBackoff(cfg)
	}
}

// WithBackoff 覆盖退避策略，nil 被忽略。
func WithBackoff(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoff = p
		}
	}
}

// WithClassifier 设置分类器，nil 被忽略（使用默认分类器）。
func WithClassifier(c *xclassify.Classifier) RetryerOption {
	return func(r *Retryer) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithOnRetry 设置重试回调，在每次等待之前同步调用。nil 被忽略。
func WithOnRetry(f func(RetryEvent)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 创建执行器，默认使用 DefaultRetryConfig。
func NewRetryer(opts ...RetryerOption) *Retryer {
	cfg := DefaultRetryConfig()
	r := &Retryer{
		cfg:        cfg,
		backoff:    NewCategoryBackoff(cfg),
		classifier: xclassify.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Config 返回执行器的重试参数。
func (r *Retryer) Config() RetryConfig {
	if r == nil {
		return RetryConfig{}
	}
	return r.cfg
}

// Do 执行 fn，失败时按类别决定是否重试。
//
// 返回最后一次失败的错误；ctx 在等待期间被取消时，
// 返回的错误同时匹配 ctx.Err() 和最后一次失败的错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	var last error
	err := retry.New(r.buildOptions(ctx)...).Do(func() error {
		err := fn(ctx)
		if err != nil {
			last = err
		}
		return err
	})
	return joinContextErr(ctx, err, last)
}

// DoWithResult 与 Do 相同，但带返回值。泛型函数只能是包级函数。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	var last error
	v, err := retry.NewWithData[T](r.buildOptions(ctx)...).Do(func() (T, error) {
		v, err := fn(ctx)
		if err != nil {
			last = err
		}
		return v, err
	})
	if err != nil {
		return zero, joinContextErr(ctx, err, last)
	}
	return v, nil
}

// Classify 返回 err 在当前执行器下的类别。
func (r *Retryer) Classify(err error) xclassify.Category {
	if r == nil {
		return xclassify.ClassifyError(err)
	}
	return r.classifier.Classify(xclassify.Err(err))
}

// Retryable 综合 RetryableError 声明和类别判断 err 是否可重试。
func (r *Retryer) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if !retry.IsRecoverable(err) {
		return false
	}
	if retryable, ok := retryableOverride(err); ok {
		return retryable
	}
	return IsRetryable(r.Classify(err))
}

// buildOptions 构建 retry-go 选项。每次调用都重新构建，保证不同 Do 之间无共享状态。
func (r *Retryer) buildOptions(ctx context.Context) []retry.Option {
	backoff := r.backoff
	if backoff == nil {
		backoff = NewCategoryBackoff(r.cfg)
	}
	maxRetries := max(r.cfg.MaxRetries, 0)

	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(safeAttempts(maxRetries)),
		retry.RetryIf(r.Retryable),
		// retry-go v5 的 DelayType n 从 1 开始，转换为从 0 开始的重试序号
		retry.DelayType(func(n uint, err error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(retryIndex(n), r.Classify(err))
		}),
		// OnRetry 的 n 从 0 开始，恰好是即将进行的重试序号；
		// 预算已用完的那次失败不再通知
		retry.OnRetry(func(n uint, err error) {
			if idx := toInt(n); r.onRetry != nil && idx < maxRetries {
				r.onRetry(RetryEvent{Attempt: idx, Category: r.Classify(err), Err: err})
			}
		}),
		retry.LastErrorOnly(true),
	}
}

// safeAttempts 把重试次数换算为 retry-go 的总尝试次数（含首次）。
// retry-go 中 0 表示无限重试，因此结果至少为 1。
func safeAttempts(maxRetries int) uint {
	if maxRetries >= math.MaxInt32 {
		return math.MaxInt32
	}
	return uint(maxRetries) + 1
}

func retryIndex(n uint) int {
	if n == 0 {
		return 0
	}
	return toInt(n - 1)
}

func toInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

// joinContextErr 在 ctx 已结束时合并 ctx.Err() 与最后一次失败。
// LastErrorOnly 模式下 retry-go 被取消时只返回 ctx.Err()，last 需由调用方记录。
func joinContextErr(ctx context.Context, err, last error) error {
	if err == nil {
		return nil
	}
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return err
	}
	if !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	if last != nil && !errors.Is(err, last) {
		err = errors.Join(err, last)
	}
	return err
}
