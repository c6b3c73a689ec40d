package xmetrics

import (
	"context"
	"strconv"
)

// Kind 表示观测跨度类型。
type Kind int

const (
	// KindInternal 表示内部操作。
	KindInternal Kind = iota
	// KindClient 表示对外部提供方的调用。
	KindClient
)

// String 返回 Kind 的可读字符串表示。
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindClient:
		return "Client"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status 表示观测结果状态。
type Status string

const (
	// StatusOK 表示成功。
	StatusOK Status = "ok"
	// StatusError 表示失败。
	StatusError Status = "error"
	// StatusRejected 表示被熔断器或资源守卫拒绝，未真正发起请求。
	StatusRejected Status = "rejected"
)

// Attr 表示观测属性。
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 定义观测跨度的创建参数。
type SpanOptions struct {
	// Operation 操作名称，同时作为 span 名称。
	Operation string
	// Provider 提供方 key，写入 span 和指标。
	Provider string
	// Kind 跨度类型。
	Kind Kind
	// Attrs 只写入 span 的附加属性（例如 user_id），不进入指标。
	Attrs []Attr
}

// Result 表示观测跨度结束时的结果。
type Result struct {
	// Status 为空时根据 Err 推导。
	Status Status
	// Err 操作错误。
	Err error
	// Category 失败类别，成功时为空。
	Category string
	// Attrs 附加 span 属性。
	Attrs []Attr
}

// Span 表示一次观测跨度。
type Span interface {
	// End 结束观测并记录结果，多次调用只生效一次。
	End(result Result)
}

// Observer 统一观测接口。
type Observer interface {
	// Start 开始一次观测跨度。
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)

	// BreakerTransition 记录一次熔断器状态切换。
	BreakerTransition(ctx context.Context, provider, from, to string)

	// JobsActive 调整活跃任务数，delta 为 +1 或 -1。
	JobsActive(ctx context.Context, delta int64)
}

// NoopObserver 是空实现。
type NoopObserver struct{}

var _ Observer = NoopObserver{}

// Start 返回 ctx 和空跨度。若 ctx 为 nil，返回 context.Background()。
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// BreakerTransition 空实现。
func (NoopObserver) BreakerTransition(context.Context, string, string, string) {}

// JobsActive 空实现。
func (NoopObserver) JobsActive(context.Context, int64) {}

// NoopSpan 是空跨度实现。
type NoopSpan struct{}

// End 空实现。
func (NoopSpan) End(Result) {}

// Start 使用 observer 开始观测，保证返回非 nil 的 ctx 和 Span。
// nil observer 或自定义实现返回 nil 时兜底为空跨度。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}
