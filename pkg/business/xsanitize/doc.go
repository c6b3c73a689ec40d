// Package xsanitize 在凭据进入抓取任务之前做规范化和基本校验。
//
// 只处理两类最容易出问题的输入：
//   - 邮箱：[SanitizeEmail] 去首尾空白、转小写，只保留 ASCII 字母数字和 . _ + - @
//   - 密码：[ValidatePassword] 拒绝空串、纯空白和超过 512 个字符的输入
//
// 密码校验不是强度检查，只用于阻止明显畸形的输入进入缓慢的外部登录流程。
// 日志中出现邮箱时使用 [Redact] 脱敏。
package xsanitize
