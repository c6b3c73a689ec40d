// Package xclassify 将任意失败信号归类为固定的错误类别（Category）。
//
// # 设计理念
//
// 分类结果是重试策略（xretry）和熔断注册表（xbreaker）的唯一依据。
// 分类函数是纯函数：无副作用、不返回错误、不 panic，
// 无法识别的输入一律归为 [Unknown]，保证分类本身永远不会阻塞重试流程。
//
// # 输入
//
// 调用边界上的失败信号用 [Signal] 表示，它是一个和类型：
//   - [Text]：原始错误消息
//   - [Err]：结构化 error
//   - [Value]：其他不透明值（如数字），总是归为 Unknown
//
// [Of] 根据动态类型自动选择变体。
//
// # 匹配规则
//
// 信号先被规整为小写字符串，然后按固定顺序逐类匹配，首个命中的类别胜出：
//
//	transient → rate_limit → bot_detected → auth_failure → permanent → resource → unknown
//
// 例如同时包含 "429" 与 "bot protection" 的消息归为 rate_limit。
//
// 错误链中实现了 [Categorized] 接口的错误直接使用其自带类别，跳过文本匹配。
package xclassify
