package xfetch

import (
	"github.com/omeyang/fetchguard/pkg/config/xconf"
	"github.com/omeyang/fetchguard/pkg/observability/xlog"
	"github.com/omeyang/fetchguard/pkg/observability/xmetrics"
	"github.com/omeyang/fetchguard/pkg/resilience/xbreaker"
	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

// Option Guard 配置选项。
type Option func(*options)

type options struct {
	retry          xretry.RetryConfig
	maxActiveJobs  int
	breakerOptions []xbreaker.Option
	classifier     *xclassify.Classifier
	backoff        xretry.BackoffPolicy
	logger         xlog.Logger
	observer       xmetrics.Observer
}

// classifierCacheSize 默认分类器的缓存条目数。
const classifierCacheSize = 1024

func defaultOptions() options {
	return options{
		retry:    xretry.DefaultRetryConfig(),
		logger:   xlog.Discard(),
		observer: xmetrics.NoopObserver{},
	}
}

// WithSettings 应用配置文件中的重试、熔断和资源守卫参数。
func WithSettings(s xconf.Settings) Option {
	return func(o *options) {
		o.retry = s.Retry
		o.maxActiveJobs = s.Guard.MaxActiveJobs
		o.breakerOptions = append(o.breakerOptions, s.BreakerOptions()...)
	}
}

// WithRetryConfig 设置重试参数。
func WithRetryConfig(cfg xretry.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithMaxActiveJobs 设置每个用户的活跃任务上限，0 表示不限制。
func WithMaxActiveJobs(n int) Option {
	return func(o *options) {
		o.maxActiveJobs = n
	}
}

// WithBreakerOptions 追加熔断器注册表选项。
// 其中的 WithOnStateChange 会被 Guard 自身的状态切换回调覆盖，切换事件请通过 Observer 获取。
func WithBreakerOptions(opts ...xbreaker.Option) Option {
	return func(o *options) {
		o.breakerOptions = append(o.breakerOptions, opts...)
	}
}

// WithClassifier 设置分类器，nil 被忽略。默认使用带缓存的内置规则分类器。
func WithClassifier(c *xclassify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithBackoff 覆盖退避策略，默认按当前重试参数使用 CategoryBackoff。
func WithBackoff(p xretry.BackoffPolicy) Option {
	return func(o *options) {
		o.backoff = p
	}
}

// WithLogger 设置日志，nil 被忽略。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver 设置观测器，nil 被忽略。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
