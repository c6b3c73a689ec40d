package xconf

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/fetchguard/pkg/observability/xlog"
	"github.com/omeyang/fetchguard/pkg/resilience/xbreaker"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

// Settings fetchguard 运行配置。
//
//	retry:   {max_retries: 3, base_delay: 1s, max_delay: 60s, jitter: 250ms}
//	breaker: {threshold: 5, cooldown: 0s}
//	guard:   {max_active_jobs: 0}
//	log:     {level: info, format: text, file: ""}
type Settings struct {
	Retry   xretry.RetryConfig `koanf:"retry" json:"retry"`
	Breaker BreakerSettings    `koanf:"breaker" json:"breaker"`
	Guard   GuardSettings      `koanf:"guard" json:"guard"`
	Log     LogSettings        `koanf:"log" json:"log"`
}

// BreakerSettings 熔断配置。
type BreakerSettings struct {
	// Threshold 连续失败阈值
	Threshold uint32 `koanf:"threshold" json:"threshold"`
	// Cooldown 半开恢复等待时间，0 表示不自动恢复
	Cooldown time.Duration `koanf:"cooldown" json:"cooldown"`
}

// GuardSettings 资源守卫配置。
type GuardSettings struct {
	// MaxActiveJobs 每个用户的活跃任务上限，0 表示不限制
	MaxActiveJobs int `koanf:"max_active_jobs" json:"max_active_jobs"`
}

// LogSettings 日志配置。
type LogSettings struct {
	Level    string              `koanf:"level" json:"level"`
	Format   string              `koanf:"format" json:"format"`
	File     string              `koanf:"file" json:"file"`
	Rotation xlog.RotationConfig `koanf:"rotation" json:"rotation"`
}

// Default 返回默认配置。
func Default() Settings {
	return Settings{
		Retry:   xretry.DefaultRetryConfig(),
		Breaker: BreakerSettings{Threshold: xbreaker.DefaultThreshold},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

// Validate 校验所有字段，返回合并后的错误。
func (s Settings) Validate() error {
	var errs []error
	if err := s.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Breaker.Threshold == 0 {
		errs = append(errs, errors.New("breaker.threshold must be > 0"))
	}
	if s.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("breaker.cooldown must be >= 0, got %s", s.Breaker.Cooldown))
	}
	if s.Guard.MaxActiveJobs < 0 {
		errs = append(errs, fmt.Errorf("guard.max_active_jobs must be >= 0, got %d", s.Guard.MaxActiveJobs))
	}
	if _, err := xlog.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := xlog.ParseFormat(s.Log.Format); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

// BreakerOptions 转换为 xbreaker 选项。
func (s Settings) BreakerOptions() []xbreaker.Option {
	return []xbreaker.Option{
		xbreaker.WithThreshold(s.Breaker.Threshold),
		xbreaker.WithCooldown(s.Breaker.Cooldown),
	}
}

// LogBuilder 按配置返回日志构建器，File 非空时输出到轮转文件。
func (s Settings) LogBuilder() *xlog.Builder {
	b := xlog.New().SetLevelString(s.Log.Level).SetFormat(s.Log.Format)
	if s.Log.File != "" {
		b = b.SetRotation(s.Log.File, s.Log.Rotation)
	}
	return b
}

// Decode 在默认值之上解码配置并校验。
func Decode(cfg Config) (Settings, error) {
	s := Default()
	if err := cfg.Unmarshal("", &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load 从文件加载配置。
func Load(path string, opts ...Option) (Settings, error) {
	cfg, err := New(path, opts...)
	if err != nil {
		return Settings{}, err
	}
	return Decode(cfg)
}

// LoadBytes 从字节数据加载配置。
func LoadBytes(data []byte, format Format, opts ...Option) (Settings, error) {
	cfg, err := NewFromBytes(data, format, opts...)
	if err != nil {
		return Settings{}, err
	}
	return Decode(cfg)
}
