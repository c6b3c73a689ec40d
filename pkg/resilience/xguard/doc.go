// Package xguard 提供按用户统计活跃任务数的资源守卫。
//
// 计数器是建议性的：[Guard.Increment] 和 [Guard.Decrement] 只负责记账，
// 是否拒绝新任务由调用方根据 [Guard.ActiveJobCount] 决定。
// 需要原子的"检查并占用"时使用 [Guard.TryAcquire]。
//
// 计数下限为 0，多余的 Decrement 不会产生负数。
// 未出现过的用户视为 0，读取不会创建条目。
package xguard
