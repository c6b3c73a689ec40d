// Package xconf 加载 fetchguard 的运行配置，基于 koanf 实现。
//
// # 两层结构
//
//   - [Config]：通用的 koanf 封装，负责文件/字节加载、Unmarshal 和并发安全的 Reload
//   - [Settings]：领域配置（重试、熔断、资源守卫、日志），由 [Load]/[LoadBytes] 解码并校验
//
// # 支持的格式
//
//   - YAML（推荐）：.yaml, .yml
//   - JSON：.json
//
// 时长字段使用 Go 时长字符串（"1s"、"250ms"），缺失的字段保留 [Default] 中的默认值。
//
// # 配置监视
//
// [Watch] 基于 fsnotify 监视配置文件所在目录，内置防抖，兼容编辑器的原子写入。
// [WatchSettings] 在此基础上每次重载后重新解码 Settings 并回调。
// Stop 返回后不会再开始新的回调；在回调中调用 Stop 是安全的。
//
// 适合运行时热更新的只有日志级别和重试参数，熔断阈值等在构造时固定。
package xconf
