// Package xbreaker 提供按提供方（provider key）划分的熔断器注册表。
//
// # 设计理念
//
// 每个提供方对应一个 [sony/gobreaker/v2] 熔断器，注册表负责惰性创建、
// 失败类别过滤、手动重置和状态快照。注册表是显式构造、显式注入的对象，
// 不存在包级全局状态；测试通过 [Registry.ResetAll] 隔离。
//
// # 状态
//
//   - StateClosed：允许请求
//   - StateOpen：拒绝请求，[Registry.Check] 返回的原因包含 "Circuit open"
//   - StateHalfOpen：仅在配置了 [WithCooldown] 时出现，允许一次探测
//
// 默认不会随时间自动恢复：打开后只有成功记录或手动重置能关闭熔断器。
//
// # 失败计数
//
// permanent 与 auth_failure 类别不是基础设施抖动，[Registry.RecordFailure]
// 对它们不做任何处理；其他类别累加连续失败数，达到阈值（默认 5）时打开。
// 一次成功即完全恢复：计数归零、状态回到 closed。
//
// # 并发
//
// 条目存放在按 xxhash 分片的 map 中，每个分片一把互斥锁，
// 同一 key 的读改写在同一把锁下完成。
//
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xbreaker
