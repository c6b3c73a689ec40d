// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后 Build 直接返回该错误）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/fetchguard.log", xlog.RotationConfig{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// 文件轮转基于 lumberjack，cleanup 负责关闭文件。
//
// # context 注入
//
// 默认启用 [EnrichHandler]：从 context 中提取 OpenTelemetry 的 trace_id/span_id，
// 以及 [ContextWithJobID] 写入的 job_id，追加到每条日志。
//
// # 级别
//
// [Build] 返回的 [LoggerWithLevel] 支持运行时 SetLevel，
// 派生 logger（With/WithGroup）共享同一个 LevelVar，配置热更新时同步生效。
//
// # 领域属性
//
// [Provider]、[Category]、[UserID]、[Attempt]、[Delay]、[JobID]、[Err]、[Duration]。
// 邮箱等凭据不得直接写入日志，应先脱敏。
package xlog
