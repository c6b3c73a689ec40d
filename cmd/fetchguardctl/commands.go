package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/fetchguard/pkg/business/xsanitize"
	"github.com/omeyang/fetchguard/pkg/config/xconf"
	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
	"github.com/omeyang/fetchguard/pkg/resilience/xretry"
)

// maxPasswordInput 标准输入最多读取的字节数。
const maxPasswordInput = 64 << 10

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createClassifyCommand(),
		createBackoffCommand(),
		createSanitizeEmailCommand(),
		createCheckPasswordCommand(),
		createConfigCommand(),
	}
}

func createClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "对错误信息分类",
		ArgsUsage: "<message...>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdClassify(cmd.Root().Writer, cmd.Args().Slice())
		},
	}
}

func createBackoffCommand() *cli.Command {
	return &cli.Command{
		Name:  "backoff",
		Usage: "打印退避时间表",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "失败类别",
				Value:   string(xclassify.Transient),
			},
			&cli.IntFlag{
				Name:    "attempts",
				Aliases: []string{"n"},
				Usage:   "打印的重试次数，0 表示使用配置中的 max_retries",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "配置文件路径（yaml/json）",
			},
			&cli.BoolFlag{
				Name:  "jitter",
				Usage: "包含随机抖动",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdBackoff(cmd.Root().Writer, backoffParams{
				category: cmd.String("category"),
				attempts: cmd.Int("attempts"),
				config:   cmd.String("config"),
				jitter:   cmd.Bool("jitter"),
			})
		},
	}
}

func createSanitizeEmailCommand() *cli.Command {
	return &cli.Command{
		Name:      "sanitize-email",
		Usage:     "清洗邮箱地址",
		ArgsUsage: "<raw>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "redact",
				Usage: "输出脱敏后的结果",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return usagef("sanitize-email 需要一个参数")
			}
			return cmdSanitizeEmail(cmd.Root().Writer, cmd.Args().First(), cmd.Bool("redact"))
		},
	}
}

func createCheckPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-password",
		Usage: "从标准输入读取密码并校验",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdCheckPassword(cmd.Root().Reader, cmd.Root().Writer)
		},
	}
}

func createConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "配置文件工具",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "校验配置文件",
				ArgsUsage: "<file>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.NArg() != 1 {
						return usagef("config validate 需要一个文件路径")
					}
					return cmdConfigValidate(cmd.Root().Writer, cmd.Args().First())
				},
			},
			{
				Name:      "watch",
				Usage:     "监听配置文件变更并在每次重载后校验，Ctrl+C 退出",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "事件防抖间隔",
						Value: xconf.DefaultDebounce,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.NArg() != 1 {
						return usagef("config watch 需要一个文件路径")
					}
					return cmdConfigWatch(ctx, cmd.Root().Writer, cmd.Args().First(), cmd.Duration("debounce"))
				},
			},
		},
	}
}

func cmdClassify(w io.Writer, args []string) error {
	if len(args) == 0 {
		return usagef("classify 需要错误信息")
	}
	c := xclassify.ClassifyText(strings.Join(args, " "))
	fmt.Fprintf(w, "category:  %s\n", c)
	fmt.Fprintf(w, "retryable: %t\n", xretry.IsRetryable(c))
	return nil
}

type backoffParams struct {
	category string
	attempts int
	config   string
	jitter   bool
}

func cmdBackoff(w io.Writer, p backoffParams) error {
	c, err := xclassify.ParseCategory(p.category)
	if err != nil {
		return usagef("%v", err)
	}
	if p.attempts < 0 {
		return usagef("attempts 不能为负数: %d", p.attempts)
	}

	settings := xconf.Default()
	if p.config != "" {
		if settings, err = xconf.Load(p.config); err != nil {
			return err
		}
	}
	cfg := settings.Retry
	if !p.jitter {
		cfg.Jitter = 0
	}
	n := p.attempts
	if n == 0 {
		n = cfg.MaxRetries
	}

	if !xretry.IsRetryable(c) {
		fmt.Fprintf(w, "category %s is not retryable\n", c)
		return &exitError{code: 1}
	}
	for i := range n {
		fmt.Fprintf(w, "retry %d: %s\n", i, xretry.NextDelay(i, c, cfg))
	}
	if n > cfg.MaxRetries {
		fmt.Fprintf(w, "note: max_retries is %d, later entries are never used\n", cfg.MaxRetries)
	}
	return nil
}

func cmdSanitizeEmail(w io.Writer, raw string, redact bool) error {
	clean := xsanitize.SanitizeEmail(raw)
	if clean == "" {
		fmt.Fprintln(w, "empty after sanitizing")
		return &exitError{code: 1}
	}
	if redact {
		clean = xsanitize.Redact(clean)
	}
	fmt.Fprintln(w, clean)
	return nil
}

func cmdCheckPassword(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(io.LimitReader(r, maxPasswordInput))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	res := xsanitize.ValidatePassword(string(data))
	if !res.Valid {
		fmt.Fprintf(w, "invalid: %v\n", res.Err)
		return &exitError{code: 1}
	}
	fmt.Fprintln(w, "ok")
	return nil
}

func cmdConfigValidate(w io.Writer, path string) error {
	s, err := xconf.Load(path)
	if err != nil {
		if errors.Is(err, xconf.ErrInvalidSettings) {
			fmt.Fprintf(w, "invalid: %v\n", err)
			return &exitError{code: 1}
		}
		return err
	}
	fmt.Fprintln(w, "ok")
	fmt.Fprintf(w, "retry:   max_retries=%d base_delay=%s max_delay=%s jitter=%s\n",
		s.Retry.MaxRetries, s.Retry.BaseDelay, s.Retry.MaxDelay, s.Retry.Jitter)
	fmt.Fprintf(w, "breaker: threshold=%d cooldown=%s\n", s.Breaker.Threshold, s.Breaker.Cooldown)
	fmt.Fprintf(w, "guard:   max_active_jobs=%d\n", s.Guard.MaxActiveJobs)
	fmt.Fprintf(w, "log:     level=%s format=%s file=%q\n", s.Log.Level, s.Log.Format, s.Log.File)
	return nil
}

// cmdConfigWatch 阻塞直到 ctx 取消。回调在监听协程中执行，输出加锁。
func cmdConfigWatch(ctx context.Context, w io.Writer, path string, debounce time.Duration) error {
	if err := cmdConfigValidate(w, path); err != nil {
		return err
	}

	var mu sync.Mutex
	watcher, err := xconf.WatchSettings(path, func(s xconf.Settings, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(w, "reload invalid: %v\n", err)
			return
		}
		fmt.Fprintf(w, "reloaded: max_retries=%d threshold=%d max_active_jobs=%d level=%s\n",
			s.Retry.MaxRetries, s.Breaker.Threshold, s.Guard.MaxActiveJobs, s.Log.Level)
	}, xconf.WithDebounce(debounce))
	if err != nil {
		return err
	}
	watcher.Start()
	<-ctx.Done()
	return watcher.Stop()
}
