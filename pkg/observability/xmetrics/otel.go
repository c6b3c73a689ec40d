package xmetrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/fetchguard/xmetrics"
	unknownOperation           = "unknown"
	noCategory                 = "none"
)

// 指标名称
const (
	MetricAttemptTotal       = "fetchguard.attempt.total"
	MetricAttemptDuration    = "fetchguard.attempt.duration"
	MetricBreakerTransitions = "fetchguard.breaker.transitions"
	MetricJobsActive         = "fetchguard.jobs.active"
)

type otelConfig struct {
	instrumentationName string
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
}

// Option 定义 OTel Observer 的配置选项。
type Option func(*otelConfig)

// WithInstrumentationName 设置 OTel instrumentation 名称。
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider，nil 被忽略。
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithMeterProvider 设置 MeterProvider，nil 被忽略。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer，默认使用全局 provider。
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		tracerProvider:      otel.GetTracerProvider(),
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	meter := cfg.meterProvider.Meter(cfg.instrumentationName)
	o := &otelObserver{tracer: cfg.tracerProvider.Tracer(cfg.instrumentationName)}

	var err error
	if o.total, err = meter.Int64Counter(MetricAttemptTotal,
		metric.WithDescription("fetch attempts"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateCounter, err)
	}
	if o.duration, err = meter.Float64Histogram(MetricAttemptDuration,
		metric.WithDescription("fetch attempt duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateHistogram, err)
	}
	if o.transitions, err = meter.Int64Counter(MetricBreakerTransitions,
		metric.WithDescription("circuit breaker state transitions"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateCounter, err)
	}
	if o.jobs, err = meter.Int64UpDownCounter(MetricJobsActive,
		metric.WithDescription("active fetch jobs"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateCounter, err)
	}
	return o, nil
}

type otelObserver struct {
	tracer      trace.Tracer
	total       metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	jobs        metric.Int64UpDownCounter
}

// Start 开始一次观测跨度。
func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	operation := opts.Operation
	if operation == "" {
		operation = unknownOperation
	}

	attrs := make([]attribute.KeyValue, 0, 1+len(opts.Attrs))
	if opts.Provider != "" {
		attrs = append(attrs, attribute.String("provider", opts.Provider))
	}
	attrs = append(attrs, attrsToOTel(opts.Attrs)...)

	ctx, span := o.tracer.Start(ctx, operation,
		trace.WithSpanKind(mapSpanKind(opts.Kind)),
		trace.WithAttributes(attrs...),
	)
	return ctx, &otelSpan{
		span:     span,
		observer: o,
		ctx:      ctx,
		provider: opts.Provider,
		start:    time.Now(),
	}
}

// BreakerTransition 记录熔断器状态切换。
func (o *otelObserver) BreakerTransition(ctx context.Context, provider, from, to string) {
	o.transitions.Add(metricsContext(ctx), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// JobsActive 调整活跃任务数。
func (o *otelObserver) JobsActive(ctx context.Context, delta int64) {
	o.jobs.Add(metricsContext(ctx), delta)
}

type otelSpan struct {
	span     trace.Span
	observer *otelObserver
	ctx      context.Context
	provider string
	start    time.Time
	endOnce  sync.Once
}

// End 结束观测并记录结果，幂等。
func (s *otelSpan) End(result Result) {
	if s == nil {
		return
	}
	s.endOnce.Do(func() {
		status := resolveStatus(result)
		switch {
		case status == StatusOK:
			s.span.SetStatus(codes.Ok, "")
		case result.Err != nil:
			s.span.RecordError(result.Err)
			s.span.SetStatus(codes.Error, result.Err.Error())
		default:
			s.span.SetStatus(codes.Error, string(status))
		}

		category := result.Category
		if category == "" {
			category = noCategory
		}
		s.span.SetAttributes(attribute.String("category", category))
		if len(result.Attrs) > 0 {
			s.span.SetAttributes(attrsToOTel(result.Attrs)...)
		}
		s.span.End()

		// 请求 ctx 可能已取消，指标仍需记录
		ctx := metricsContext(s.ctx)
		attrs := metric.WithAttributes(
			attribute.String("provider", s.provider),
			attribute.String("category", category),
			attribute.String("status", string(status)),
		)
		s.observer.total.Add(ctx, 1, attrs)
		s.observer.duration.Record(ctx, time.Since(s.start).Seconds(), attrs)
	})
}

func metricsContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}

func resolveStatus(result Result) Status {
	if result.Status != "" {
		return result.Status
	}
	if result.Err != nil {
		return StatusError
	}
	return StatusOK
}

func mapSpanKind(kind Kind) trace.SpanKind {
	if kind == KindClient {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

func attrsToOTel(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	converted := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key == "" || attr.Value == nil {
			continue
		}
		converted = append(converted, toKeyValue(attr))
	}
	return converted
}

func toKeyValue(attr Attr) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	case time.Duration:
		return attribute.Int64(attr.Key, v.Milliseconds())
	case fmt.Stringer:
		return attribute.String(attr.Key, v.String())
	default:
		return attribute.String(attr.Key, fmt.Sprint(v))
	}
}
