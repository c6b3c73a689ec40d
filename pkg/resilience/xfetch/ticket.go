package xfetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/fetchguard/pkg/observability/xlog"
	"github.com/omeyang/fetchguard/pkg/observability/xmetrics"
	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

// Outcome 一次尝试结束后的决策。
type Outcome struct {
	// Category 失败类别，成功时为空
	Category xclassify.Category
	// Retry 是否应当重试
	Retry bool
	// Delay 重试前的等待时长，Retry 为 false 或由 Run 驱动时为 0
	Delay time.Duration
}

// Ticket 一次已准入的尝试。
type Ticket struct {
	g       *Guard
	ctx     context.Context
	req     Request
	release func()
	span    xmetrics.Span
	cfg     xretry.RetryConfig
	start   time.Time
	managed bool

	once    sync.Once
	outcome Outcome
}

// Context 返回带任务 ID 和 span 的 context，抓取逻辑应使用它。
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// JobID 返回任务 ID。
func (t *Ticket) JobID() string {
	return t.req.JobID
}

// Done 结束本次尝试：记录熔断结果、分类、决定是否重试并释放活跃任务计数。
//
// 只有第一次调用生效，之后的调用返回相同的 Outcome。
func (t *Ticket) Done(err error) Outcome {
	t.once.Do(func() {
		t.outcome = t.finish(err)
	})
	return t.outcome
}

func (t *Ticket) finish(err error) Outcome {
	g := t.g
	t.release()
	g.observer.JobsActive(t.ctx, -1)

	elapsed := time.Since(t.start)

	if err == nil {
		g.breakers.RecordSuccess(t.req.Provider)
		t.span.End(xmetrics.Result{Status: xmetrics.StatusOK})
		g.logger.Debug(t.ctx, "attempt succeeded",
			xlog.Provider(t.req.Provider), xlog.UserID(t.req.User),
			xlog.Attempt(t.req.Attempt), xlog.Duration(elapsed))
		return Outcome{}
	}

	cat := g.Classify(err)
	g.breakers.RecordFailure(t.req.Provider, cat)

	out := Outcome{Category: cat}
	retryer := xretry.NewRetryer(xretry.WithConfig(t.cfg), xretry.WithClassifier(g.classifier))
	if t.req.Attempt < t.cfg.MaxRetries && retryer.Retryable(err) {
		out.Retry = true
		if !t.managed {
			out.Delay = g.nextDelay(t.req.Attempt, cat, t.cfg)
		}
	}

	t.span.End(xmetrics.Result{Status: xmetrics.StatusError, Err: err, Category: cat.String()})
	attrs := []slog.Attr{
		xlog.Provider(t.req.Provider), xlog.UserID(t.req.User),
		xlog.Attempt(t.req.Attempt), xlog.Category(cat), xlog.Duration(elapsed),
	}
	// Run 驱动时等待时长由执行器的 "retrying" 日志记录
	if !t.managed {
		attrs = append(attrs, xlog.Delay(out.Delay))
	}
	g.logger.Warn(t.ctx, "attempt failed", append(attrs, xlog.Err(err))...)
	return out
}
