package xfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/fetchguard/pkg/config/xconf"
	"github.com/omeyang/fetchguard/pkg/observability/xlog"
	"github.com/omeyang/fetchguard/pkg/observability/xmetrics"
	"github.com/omeyang/fetchguard/pkg/resilience/xbreaker"
	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
	"github.com/omeyang/fetchguard/pkg/resilience/xguard"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

var errReset = errors.New("read tcp: ECONNRESET")

func newGuard(t *testing.T, opts ...Option) *Guard {
	t.Helper()
	opts = append([]Option{WithBackoff(xretry.NoBackoff{})}, opts...)
	g, err := New(opts...)
	require.NoError(t, err)
	return g
}

// fail 让提供方连续失败 n 次。
func fail(t *testing.T, g *Guard, provider string, n int) {
	t.Helper()
	for range n {
		tk, err := g.Before(context.Background(), Request{Provider: provider, User: "u"})
		require.NoError(t, err)
		tk.Done(errReset)
	}
}

// recordingObserver 记录观测调用。
type recordingObserver struct {
	mu          sync.Mutex
	spans       []xmetrics.SpanOptions
	results     []xmetrics.Result
	transitions [][3]string
	jobs        int64
}

func (o *recordingObserver) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spans = append(o.spans, opts)
	return ctx, &recordingSpan{o: o}
}

func (o *recordingObserver) BreakerTransition(_ context.Context, provider, from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, [3]string{provider, from, to})
}

func (o *recordingObserver) JobsActive(_ context.Context, delta int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs += delta
}

func (o *recordingObserver) statuses() []xmetrics.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]xmetrics.Status, 0, len(o.results))
	for _, r := range o.results {
		out = append(out, r.Status)
	}
	return out
}

type recordingSpan struct {
	o *recordingObserver
}

func (s *recordingSpan) End(r xmetrics.Result) {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	s.o.results = append(s.o.results, r)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(WithRetryConfig(xretry.RetryConfig{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Second}))
	require.ErrorIs(t, err, xretry.ErrInvalidConfig)

	_, err = New(WithMaxActiveJobs(-1))
	require.Error(t, err)

	_, err = New(WithBreakerOptions(xbreaker.WithShardCount(3)))
	require.ErrorIs(t, err, xbreaker.ErrInvalidShardCount)
}

func TestNew_Defaults(t *testing.T) {
	g, err := New(nil, WithLogger(nil), WithObserver(nil), WithClassifier(nil))
	require.NoError(t, err)
	assert.Equal(t, xretry.DefaultRetryConfig(), g.RetryConfig())
	assert.Equal(t, 0, g.MaxActiveJobs())
	assert.Empty(t, g.Summary())
}

func TestWithSettings(t *testing.T) {
	s := xconf.Default()
	s.Retry.MaxRetries = 1
	s.Breaker.Threshold = 2
	s.Guard.MaxActiveJobs = 4

	g := newGuard(t, WithSettings(s))
	assert.Equal(t, 1, g.RetryConfig().MaxRetries)
	assert.Equal(t, 4, g.MaxActiveJobs())

	fail(t, g, "bank", 2)
	assert.Equal(t, xbreaker.StateOpen, g.ProviderState("bank"))
}

func TestBefore_UserLimit(t *testing.T) {
	g := newGuard(t, WithMaxActiveJobs(1))
	ctx := context.Background()

	t1, err := g.Before(ctx, Request{Provider: "bank", User: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, g.ActiveJobs("alice"))

	_, err = g.Before(ctx, Request{Provider: "bank", User: "alice"})
	require.ErrorIs(t, err, ErrTooManyJobs)
	require.ErrorIs(t, err, xguard.ErrLimitReached)
	assert.False(t, xretry.IsRetryableError(err))
	assert.Equal(t, 1, g.ActiveJobs("alice"))

	// 其他用户不受影响
	t2, err := g.Before(ctx, Request{Provider: "bank", User: "bob"})
	require.NoError(t, err)
	t2.Done(nil)

	t1.Done(nil)
	assert.Equal(t, 0, g.ActiveJobs("alice"))

	t3, err := g.Before(ctx, Request{Provider: "bank", User: "alice"})
	require.NoError(t, err)
	t3.Done(nil)
}

func TestBefore_BreakerOpen(t *testing.T) {
	g := newGuard(t)
	fail(t, g, "bank", xbreaker.DefaultThreshold)

	_, err := g.Before(context.Background(), Request{Provider: "bank", User: "alice"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.True(t, xbreaker.IsOpen(err))
	assert.Contains(t, err.Error(), "Circuit open")
	assert.False(t, xretry.IsRetryableError(err))
	assert.Equal(t, 0, g.ActiveJobs("alice"), "rejected attempt must not hold a slot")

	// 其他提供方不受影响
	tk, err := g.Before(context.Background(), Request{Provider: "other", User: "alice"})
	require.NoError(t, err)
	tk.Done(nil)
}

func TestBefore_JobID(t *testing.T) {
	g := newGuard(t)

	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	_, perr := uuid.Parse(tk.JobID())
	require.NoError(t, perr)
	assert.Equal(t, tk.JobID(), xlog.JobIDFromContext(tk.Context()))
	tk.Done(nil)

	ctx := xlog.ContextWithJobID(context.Background(), "job-1")
	tk, err = g.Before(ctx, Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", tk.JobID())
	tk.Done(nil)

	//nolint:staticcheck // 验证 nil ctx 兜底
	tk, err = g.Before(nil, Request{Provider: "bank", User: "u", JobID: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", tk.JobID())
	tk.Done(nil)
}

func TestTicket_Done(t *testing.T) {
	cfg := xretry.RetryConfig{MaxRetries: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		name    string
		attempt int
		err     error
		want    Outcome
	}{
		{"success", 0, nil, Outcome{}},
		{"transient first", 0, errReset, Outcome{Category: xclassify.Transient, Retry: true, Delay: 100 * time.Millisecond}},
		{"transient second", 1, errReset, Outcome{Category: xclassify.Transient, Retry: true, Delay: 200 * time.Millisecond}},
		{"budget exhausted", 2, errReset, Outcome{Category: xclassify.Transient}},
		{"rate limit", 0, errors.New("HTTP 429"), Outcome{Category: xclassify.RateLimit, Retry: true, Delay: 300 * time.Millisecond}},
		{"auth failure", 0, errors.New("invalid password"), Outcome{Category: xclassify.AuthFailure}},
		{"permanent", 0, errors.New("page not found"), Outcome{Category: xclassify.Permanent}},
		{"declared permanent", 0, xretry.NewPermanentError(errReset), Outcome{Category: xclassify.Transient}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(WithRetryConfig(cfg))
			require.NoError(t, err)
			tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u", Attempt: tt.attempt})
			require.NoError(t, err)
			assert.Equal(t, tt.want, tk.Done(tt.err))
			assert.Equal(t, 0, g.ActiveJobs("u"))
		})
	}
}

func TestTicket_DoneOnce(t *testing.T) {
	g := newGuard(t)
	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)

	first := tk.Done(errReset)
	second := tk.Done(nil)
	assert.Equal(t, first, second)
	assert.Equal(t, 0, g.ActiveJobs("u"))
	assert.Equal(t, 1, g.Summary()["bank"].Failures)
}

func TestTicket_SuccessResetsFailures(t *testing.T) {
	g := newGuard(t)
	fail(t, g, "bank", xbreaker.DefaultThreshold-1)
	assert.Equal(t, xbreaker.DefaultThreshold-1, g.Summary()["bank"].Failures)

	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	tk.Done(nil)
	assert.Equal(t, 0, g.Summary()["bank"].Failures)

	fail(t, g, "bank", xbreaker.DefaultThreshold-1)
	assert.Equal(t, xbreaker.StateClosed, g.ProviderState("bank"))
}

func TestTicket_ExemptFailures(t *testing.T) {
	g := newGuard(t)
	for range 10 {
		tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
		require.NoError(t, err)
		tk.Done(errors.New("login failed"))
	}
	assert.Equal(t, xbreaker.StateClosed, g.ProviderState("bank"))
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	g := newGuard(t)
	var calls atomic.Int32
	err := g.Run(context.Background(), "bank", "u", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errReset
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 0, g.Summary()["bank"].Failures)
	assert.Equal(t, 0, g.ActiveJobs("u"))
}

func TestRun_NotRetryable(t *testing.T) {
	g := newGuard(t)
	var calls atomic.Int32
	err := g.Run(context.Background(), "bank", "u", func(context.Context) error {
		calls.Add(1)
		return errors.New("account locked")
	})
	require.Error(t, err)
	assert.Equal(t, xclassify.AuthFailure, g.Classify(err))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, xbreaker.StateClosed, g.ProviderState("bank"))
}

func TestRun_ExhaustsRetries(t *testing.T) {
	g := newGuard(t, WithRetryConfig(xretry.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	var calls atomic.Int32
	err := g.Run(context.Background(), "bank", "u", func(context.Context) error {
		calls.Add(1)
		return errReset
	})
	require.ErrorIs(t, err, errReset)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3, g.Summary()["bank"].Failures)
}

func TestRun_BreakerOpensMidJob(t *testing.T) {
	g := newGuard(t,
		WithRetryConfig(xretry.RetryConfig{MaxRetries: 10, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		WithBreakerOptions(xbreaker.WithThreshold(2)),
	)
	var calls atomic.Int32
	err := g.Run(context.Background(), "bank", "u", func(context.Context) error {
		calls.Add(1)
		return errReset
	})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, xbreaker.StateOpen, g.ProviderState("bank"))
}

func TestRun_UserLimit(t *testing.T) {
	g := newGuard(t, WithMaxActiveJobs(1))
	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	defer tk.Done(nil)

	called := false
	err = g.Run(context.Background(), "bank", "u", func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrTooManyJobs)
	assert.False(t, called)
}

// fixedBackoff 固定等待时长。
type fixedBackoff time.Duration

func (b fixedBackoff) NextDelay(int, xclassify.Category) time.Duration { return time.Duration(b) }

func TestRun_ContextCanceled(t *testing.T) {
	g, err := New(WithBackoff(fixedBackoff(time.Hour)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = g.Run(ctx, "bank", "u", func(context.Context) error {
		cancel()
		return errReset
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, errReset)
	assert.Equal(t, 0, g.ActiveJobs("u"))
}

func TestRun_JobIDStable(t *testing.T) {
	g := newGuard(t)
	var ids []string
	err := g.Run(context.Background(), "bank", "u", func(ctx context.Context) error {
		ids = append(ids, xlog.JobIDFromContext(ctx))
		if len(ids) < 2 {
			return errReset
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
}

func TestRun_NilFunc(t *testing.T) {
	g := newGuard(t)
	require.ErrorIs(t, g.Run(context.Background(), "bank", "u", nil), ErrNilFunc)
}

func TestResetProviderAndAll(t *testing.T) {
	g := newGuard(t)
	fail(t, g, "a", xbreaker.DefaultThreshold)
	fail(t, g, "b", xbreaker.DefaultThreshold)

	g.ResetProvider("a")
	assert.Equal(t, xbreaker.StateClosed, g.ProviderState("a"))
	assert.Equal(t, xbreaker.StateOpen, g.ProviderState("b"))

	tk, err := g.Before(context.Background(), Request{Provider: "a", User: "u"})
	require.NoError(t, err)

	g.ResetAll()
	assert.Empty(t, g.Summary())
	assert.Empty(t, g.ActiveJobsSnapshot())

	// 重置后完成的 Ticket 不会让计数变为负数
	tk.Done(nil)
	assert.Equal(t, 0, g.ActiveJobs("u"))
}

func TestSetRetryConfig(t *testing.T) {
	g := newGuard(t)
	require.ErrorIs(t, g.SetRetryConfig(xretry.RetryConfig{}), xretry.ErrInvalidConfig)
	assert.Equal(t, xretry.DefaultRetryConfig(), g.RetryConfig())

	cfg := xretry.FromMillis(1, 10, 20, 0)
	require.NoError(t, g.SetRetryConfig(cfg))
	assert.Equal(t, cfg, g.RetryConfig())

	g.SetMaxActiveJobs(-3)
	assert.Equal(t, 0, g.MaxActiveJobs())
}

func TestApply(t *testing.T) {
	g := newGuard(t)

	s := xconf.Default()
	s.Retry.MaxRetries = 7
	s.Guard.MaxActiveJobs = 2
	require.NoError(t, g.Apply(s))
	assert.Equal(t, 7, g.RetryConfig().MaxRetries)
	assert.Equal(t, 2, g.MaxActiveJobs())

	bad := s
	bad.Guard.MaxActiveJobs = -1
	require.ErrorIs(t, g.Apply(bad), xconf.ErrInvalidSettings)
	assert.Equal(t, 2, g.MaxActiveJobs())
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	g := newGuard(t, WithObserver(obs), WithBreakerOptions(xbreaker.WithThreshold(1)))

	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	tk.Done(nil)

	fail(t, g, "bank", 1)
	_, err = g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.Error(t, err)

	assert.Equal(t, []xmetrics.Status{xmetrics.StatusOK, xmetrics.StatusError, xmetrics.StatusRejected}, obs.statuses())
	assert.Equal(t, [][3]string{{"bank", "closed", "open"}}, obs.transitions)
	assert.EqualValues(t, 0, obs.jobs)
	for _, s := range obs.spans {
		assert.Equal(t, "fetch.attempt", s.Operation)
		assert.Equal(t, xmetrics.KindClient, s.Kind)
	}

	g.ResetProvider("bank")
	assert.Equal(t, [3]string{"bank", "open", "closed"}, obs.transitions[len(obs.transitions)-1])
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).SetFormat("json").SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	g := newGuard(t, WithLogger(logger), WithBreakerOptions(xbreaker.WithThreshold(1)))
	ctx := xlog.ContextWithJobID(context.Background(), "job-42")
	tk, err := g.Before(ctx, Request{Provider: "bank", User: "alice"})
	require.NoError(t, err)
	tk.Done(errReset)

	out := buf.String()
	assert.Contains(t, out, `"msg":"attempt failed"`)
	assert.Contains(t, out, `"msg":"breaker state changed"`)
	assert.Contains(t, out, `"job_id":"job-42"`)
	assert.Contains(t, out, `"category":"transient"`)
	assert.NotContains(t, out, "password")
}

func TestRun_LogsAppliedDelay(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).SetFormat("json").SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	var calls atomic.Int32
	g, err := New(WithLogger(logger), WithBackoff(fixedBackoff(3*time.Millisecond)))
	require.NoError(t, err)
	err = g.Run(context.Background(), "bank", "u", func(context.Context) error {
		if calls.Add(1) == 1 {
			return errReset
		}
		return nil
	})
	require.NoError(t, err)

	records := map[string][]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		msg, _ := rec["msg"].(string)
		records[msg] = append(records[msg], rec)
	}

	require.Len(t, records["retrying"], 1)
	assert.EqualValues(t, 3, records["retrying"][0]["delay_ms"])
	require.Len(t, records["attempt failed"], 1)
	assert.NotContains(t, records["attempt failed"][0], "delay_ms")
}

func TestBefore_LogsOutcomeDelay(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).SetFormat("json").Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	g, err := New(WithLogger(logger), WithBackoff(fixedBackoff(5*time.Millisecond)))
	require.NoError(t, err)
	tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
	require.NoError(t, err)
	out := tk.Done(errReset)
	assert.Equal(t, 5*time.Millisecond, out.Delay)
	assert.Contains(t, buf.String(), `"delay_ms":5`)
}

func TestConcurrentLimit(t *testing.T) {
	const limit = 3
	g := newGuard(t, WithMaxActiveJobs(limit))

	var (
		mu      sync.Mutex
		tickets []*Ticket
		eg      errgroup.Group
	)
	for range 20 {
		eg.Go(func() error {
			tk, err := g.Before(context.Background(), Request{Provider: "bank", User: "u"})
			if errors.Is(err, ErrTooManyJobs) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			tickets = append(tickets, tk)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Len(t, tickets, limit)
	assert.Equal(t, limit, g.ActiveJobs("u"))

	for _, tk := range tickets {
		tk.Done(nil)
	}
	assert.Equal(t, 0, g.ActiveJobs("u"))
}

func TestConcurrentRun(t *testing.T) {
	// 首次失败可能连续交错出现，阈值调高避免熔断
	g := newGuard(t, WithBreakerOptions(xbreaker.WithThreshold(100)))
	var eg errgroup.Group
	for i := range 50 {
		eg.Go(func() error {
			calls := 0
			return g.Run(context.Background(), "bank", "u", func(context.Context) error {
				calls++
				if i%2 == 0 && calls == 1 {
					return errReset
				}
				return nil
			})
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, 0, g.ActiveJobs("u"))
	assert.Equal(t, xbreaker.StateClosed, g.ProviderState("bank"))
}
