package xclassify

import (
	"fmt"
	"strings"
)

// Category 错误类别（封闭枚举）。
type Category string

// 错误类别常量。
const (
	// Transient 临时故障：连接重置、超时、网关错误等。
	Transient Category = "transient"

	// RateLimit 目标方限流。
	RateLimit Category = "rate_limit"

	// BotDetected 命中机器人检测或验证码拦截。
	BotDetected Category = "bot_detected"

	// AuthFailure 凭据错误、账号锁定，需要人工修复。
	AuthFailure Category = "auth_failure"

	// Permanent 永久性失败：资源不存在、接口废弃、未知提供方。
	Permanent Category = "permanent"

	// Resource 本地资源耗尽（内存不足）。
	Resource Category = "resource"

	// Unknown 无法识别的信号。
	Unknown Category = "unknown"
)

// categories 按匹配优先级排列，Unknown 固定在最后。
var categories = []Category{
	Transient,
	RateLimit,
	BotDetected,
	AuthFailure,
	Permanent,
	Resource,
	Unknown,
}

// Categories 返回全部类别（按匹配优先级排列）的副本。
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// String 实现 fmt.Stringer。
func (c Category) String() string {
	return string(c)
}

// Valid 判断是否为已定义的类别。
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// MarshalText 实现 encoding.TextMarshaler。
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler，供配置文件和 CLI 参数使用。
func (c *Category) UnmarshalText(data []byte) error {
	parsed, err := ParseCategory(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory 解析类别名称，大小写不敏感，允许 "-" 代替 "_"。
func ParseCategory(s string) (Category, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	c := Category(normalized)
	if !c.Valid() {
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
