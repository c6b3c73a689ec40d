// Package xmetrics 提供抓取链路的可观测性接口（metrics + tracing）。
//
// # 设计理念
//
// 业务代码只依赖 [Observer] 接口；默认实现基于 OpenTelemetry，
// 未配置时使用 [NoopObserver]。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(mp))
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Operation: "fetch.attempt",
//		Provider:  "bank-a",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err, Category: "transient"})
//
// # 指标
//
//   - fetchguard.attempt.total：计数，属性 provider / category / status
//   - fetchguard.attempt.duration：直方图，单位秒，属性同上
//   - fetchguard.breaker.transitions：计数，属性 provider / from / to
//   - fetchguard.jobs.active：up-down 计数，无属性
//
// 用户 ID 基数过高，不作为指标属性，只出现在 span 和日志中。
package xmetrics
