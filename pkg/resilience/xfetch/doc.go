// Package xfetch 把分类、重试、熔断和资源守卫组合成抓取任务的统一入口。
//
// 一个进程构造一个 [Guard] 并注入到任务编排层，不存在包级单例。
//
// 单次尝试：
//
//	t, err := g.Before(ctx, xfetch.Request{Provider: "bank-a", User: "u1"})
//	if err != nil {
//		return err // ErrTooManyJobs 或 ErrProviderUnavailable
//	}
//	out := t.Done(fetch(ctx))
//	if out.Retry {
//		time.Sleep(out.Delay)
//	}
//
// 完整任务（含重试等待，等待期间响应 ctx 取消）：
//
//	err := g.Run(ctx, "bank-a", "u1", fetch)
//
// 每次尝试都会写日志、记录 span 和指标，日志和 span 中带有任务 ID（UUID）。
package xfetch
