// Package xretry 根据错误类别决定是否重试以及下一次重试的退避时长。
//
// # 策略
//
//   - [IsRetryable]：transient、rate_limit、bot_detected、resource、unknown 可重试；
//     permanent、auth_failure 不可重试（需要人工修复凭据或目标已移除资源）
//   - [NextDelay]：指数退避 BaseDelay * 2^attempt（attempt 从 0 开始），
//     rate_limit 类别再乘 3，然后截断到 MaxDelay，最后叠加 [0, Jitter] 的随机抖动
//
// 抖动只做加法，结果永远不超过 MaxDelay + Jitter。所有函数对任意输入都有定义，
// 不返回错误也不 panic；越界的 attempt 自然被 MaxDelay 截断。
//
// # 执行器
//
// [Retryer] 把上述策略接到 [avast/retry-go/v5] 上，适用于希望直接托管重试循环的调用方：
//
//	r := xretry.NewRetryer(xretry.WithConfig(cfg))
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
//
// 随机抖动使用 crypto/rand，测试中可通过 Jitter=0 获得确定结果。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
