package xretry

import retry "github.com/avast/retry-go/v5"

// retryUnrecoverable 供测试使用 retry-go 的不可恢复标记。
var retryUnrecoverable = retry.Unrecoverable
