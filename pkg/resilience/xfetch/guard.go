package xfetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/fetchguard/pkg/config/xconf"
	"github.com/omeyang/fetchguard/pkg/observability/xlog"
	"github.com/omeyang/fetchguard/pkg/observability/xmetrics"
	"github.com/omeyang/fetchguard/pkg/resilience/xbreaker"
	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
	"github.com/omeyang/fetchguard/pkg/resilience/xguard"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

// Guard 抓取任务的安全与弹性入口，并发安全。
type Guard struct {
	classifier *xclassify.Classifier
	breakers   *xbreaker.Registry
	jobs       *xguard.Guard
	backoff    xretry.BackoffPolicy
	logger     xlog.Logger
	observer   xmetrics.Observer

	retry         atomic.Pointer[xretry.RetryConfig]
	maxActiveJobs atomic.Int64
}

// New 创建 Guard。重试参数非法时返回 xretry.ErrInvalidConfig。
func New(opts ...Option) (*Guard, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.retry.Validate(); err != nil {
		return nil, err
	}
	if o.maxActiveJobs < 0 {
		return nil, fmt.Errorf("xfetch: max active jobs must be >= 0, got %d", o.maxActiveJobs)
	}

	if o.classifier == nil {
		c, err := xclassify.New(xclassify.WithCache(classifierCacheSize))
		if err != nil {
			return nil, err
		}
		o.classifier = c
	}

	g := &Guard{
		classifier: o.classifier,
		backoff:    o.backoff,
		logger:     o.logger,
		observer:   o.observer,
	}

	// 状态切换回调在注册表分片锁内同步执行，只做日志和指标，不回调注册表
	breakerOpts := append([]xbreaker.Option{}, o.breakerOptions...)
	breakerOpts = append(breakerOpts, xbreaker.WithOnStateChange(g.onBreakerTransition))
	breakers, err := xbreaker.NewRegistry(breakerOpts...)
	if err != nil {
		return nil, err
	}
	jobs, err := xguard.New()
	if err != nil {
		return nil, err
	}
	g.breakers = breakers
	g.jobs = jobs

	cfg := o.retry
	g.retry.Store(&cfg)
	g.maxActiveJobs.Store(int64(o.maxActiveJobs))
	return g, nil
}

// Request 描述一次抓取尝试。
type Request struct {
	// Provider 提供方 key，熔断按它隔离
	Provider string
	// User 用户 ID，活跃任务数按它计数
	User string
	// Attempt 本次尝试之前已发生的失败次数（首次为 0）
	Attempt int
	// JobID 任务 ID，为空时自动生成 UUID
	JobID string
}

// Before 准入检查：先查用户活跃任务上限，再查提供方熔断器，全部通过后计数加一。
//
// 被拒绝时返回的错误匹配 ErrTooManyJobs 或 ErrProviderUnavailable，
// 并声明为不可重试。通过时返回的 Ticket 必须调用一次 Done。
func (g *Guard) Before(ctx context.Context, req Request) (*Ticket, error) {
	return g.before(ctx, req, false)
}

// before 实现准入。managed 为 true 时由 Run 驱动，退避时长由重试执行器决定，Ticket 不再另行计算。
func (g *Guard) before(ctx context.Context, req Request, managed bool) (*Ticket, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.JobID == "" {
		req.JobID = xlog.JobIDFromContext(ctx)
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	ctx = xlog.ContextWithJobID(ctx, req.JobID)

	release, err := g.jobs.TryAcquire(req.User, int(g.maxActiveJobs.Load()))
	if err != nil {
		g.logger.Warn(ctx, "job rejected",
			xlog.Provider(req.Provider), xlog.UserID(req.User), xlog.Err(err))
		g.reject(ctx, req, err)
		return nil, &rejectedError{err: fmt.Errorf("%w: %w", ErrTooManyJobs, err)}
	}

	if err := g.breakers.Guard(req.Provider); err != nil {
		release()
		g.logger.Warn(ctx, "provider unavailable",
			xlog.Provider(req.Provider), xlog.UserID(req.User), xlog.Err(err))
		g.reject(ctx, req, err)
		return nil, &rejectedError{err: fmt.Errorf("%w: %w", ErrProviderUnavailable, err)}
	}

	g.observer.JobsActive(ctx, 1)
	ctx, span := xmetrics.Start(ctx, g.observer, attemptSpan(req))
	return &Ticket{
		g:       g,
		ctx:     ctx,
		req:     req,
		release: release,
		span:    span,
		cfg:     g.RetryConfig(),
		start:   time.Now(),
		managed: managed,
	}, nil
}

// Run 执行一个完整任务：每次尝试都经过 Before 准入，失败后按类别退避重试。
//
// 准入被拒绝时立即返回，不再重试；等待期间 ctx 被取消时，
// 返回的错误同时匹配 ctx.Err() 和最后一次失败的错误。
func (g *Guard) Run(ctx context.Context, provider, user string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	if ctx == nil {
		ctx = context.Background()
	}
	jobID := xlog.JobIDFromContext(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
		ctx = xlog.ContextWithJobID(ctx, jobID)
	}

	ctx, span := xmetrics.Start(ctx, g.observer, xmetrics.SpanOptions{
		Operation: "fetch.job",
		Provider:  provider,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String(xlog.KeyUserID, user), xmetrics.String(xlog.KeyJobID, jobID)},
	})

	attempt := 0
	cfg := g.RetryConfig()
	// 记录的等待时长就是执行器实际等待的时长
	retryer := g.retryer(cfg, backoffFunc(func(n int, c xclassify.Category) time.Duration {
		d := g.nextDelay(n, c, cfg)
		g.logger.Info(ctx, "retrying",
			xlog.Provider(provider), xlog.UserID(user),
			xlog.Attempt(n), xlog.Category(c), xlog.Delay(d))
		return d
	}))
	err := retryer.Do(ctx, func(ctx context.Context) error {
		t, err := g.before(ctx, Request{Provider: provider, User: user, Attempt: attempt, JobID: jobID}, true)
		attempt++
		if err != nil {
			return err
		}
		ferr := fn(t.Context())
		t.Done(ferr)
		return ferr
	})

	res := xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xlog.KeyAttempt, attempt)}}
	if err != nil {
		res.Category = g.Classify(err).String()
	}
	span.End(res)
	return err
}

// Classify 按 Guard 的分类器归类 err。
func (g *Guard) Classify(err error) xclassify.Category {
	return g.classifier.Classify(xclassify.Err(err))
}

// Summary 返回所有已知提供方的熔断快照。
func (g *Guard) Summary() map[string]xbreaker.Snapshot {
	return g.breakers.Summary()
}

// ProviderState 返回提供方熔断状态，未知提供方为 closed。
func (g *Guard) ProviderState(provider string) xbreaker.State {
	return g.breakers.State(provider)
}

// ActiveJobs 返回用户当前活跃任务数。
func (g *Guard) ActiveJobs(user string) int {
	return g.jobs.ActiveJobCount(user)
}

// ActiveJobsSnapshot 返回所有用户的活跃任务数。
func (g *Guard) ActiveJobsSnapshot() map[string]int {
	return g.jobs.Snapshot()
}

// ResetProvider 清除提供方熔断状态。
func (g *Guard) ResetProvider(provider string) {
	g.breakers.Reset(provider)
	g.logger.Info(context.Background(), "provider reset", xlog.Provider(provider))
}

// ResetAll 清除全部熔断状态和活跃任务计数。
//
// 重置后尚未 Done 的 Ticket 仍会递减计数，计数在 0 处截断。
func (g *Guard) ResetAll() {
	g.breakers.ResetAll()
	g.jobs.Reset()
	g.logger.Info(context.Background(), "all state reset")
}

// RetryConfig 返回当前重试参数。
func (g *Guard) RetryConfig() xretry.RetryConfig {
	return *g.retry.Load()
}

// SetRetryConfig 替换重试参数，只影响之后开始的尝试和任务。
func (g *Guard) SetRetryConfig(cfg xretry.RetryConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.retry.Store(&cfg)
	return nil
}

// MaxActiveJobs 返回每个用户的活跃任务上限，0 表示不限制。
func (g *Guard) MaxActiveJobs() int {
	return int(g.maxActiveJobs.Load())
}

// SetMaxActiveJobs 设置每个用户的活跃任务上限，负数视为 0。
func (g *Guard) SetMaxActiveJobs(n int) {
	g.maxActiveJobs.Store(int64(max(n, 0)))
}

// Apply 应用热更新的配置。熔断阈值和冷却时间在创建时固定，不随热更新变化。
func (g *Guard) Apply(s xconf.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := g.SetRetryConfig(s.Retry); err != nil {
		return err
	}
	g.SetMaxActiveJobs(s.Guard.MaxActiveJobs)
	g.logger.Info(context.Background(), "settings applied",
		slog.Int("max_retries", s.Retry.MaxRetries),
		slog.Int("max_active_jobs", s.Guard.MaxActiveJobs))
	return nil
}

func (g *Guard) retryer(cfg xretry.RetryConfig, backoff xretry.BackoffPolicy) *xretry.Retryer {
	return xretry.NewRetryer(
		xretry.WithConfig(cfg),
		xretry.WithClassifier(g.classifier),
		xretry.WithBackoff(backoff),
	)
}

// backoffFunc 把函数适配为 xretry.BackoffPolicy。
type backoffFunc func(attempt int, c xclassify.Category) time.Duration

func (f backoffFunc) NextDelay(attempt int, c xclassify.Category) time.Duration {
	return f(attempt, c)
}

func (g *Guard) nextDelay(attempt int, c xclassify.Category, cfg xretry.RetryConfig) time.Duration {
	if g.backoff != nil {
		return g.backoff.NextDelay(attempt, c)
	}
	return xretry.NextDelay(attempt, c, cfg)
}

func (g *Guard) reject(ctx context.Context, req Request, err error) {
	_, span := xmetrics.Start(ctx, g.observer, attemptSpan(req))
	span.End(xmetrics.Result{Status: xmetrics.StatusRejected, Err: err})
}

func (g *Guard) onBreakerTransition(provider string, from, to xbreaker.State) {
	ctx := context.Background()
	g.observer.BreakerTransition(ctx, provider, from.String(), to.String())
	g.logger.Warn(ctx, "breaker state changed",
		xlog.Provider(provider), slog.String("from", from.String()), xlog.State(to))
}

func attemptSpan(req Request) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Operation: "fetch.attempt",
		Provider:  req.Provider,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String(xlog.KeyUserID, req.User),
			xmetrics.String(xlog.KeyJobID, req.JobID),
			xmetrics.Int(xlog.KeyAttempt, req.Attempt),
		},
	}
}
