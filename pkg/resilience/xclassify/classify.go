package xclassify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultPatterns 内置匹配模式（小写）。
//
// 纯数字模式（HTTP 状态码）要求两侧不是数字，避免 "14045" 误命中 "404"。
var defaultPatterns = map[Category][]string{
	Transient: {
		"econnreset", "econnrefused", "etimedout",
		"connection reset", "connection refused",
		"socket hang up", "network error",
		"i/o timeout", "timeout", "unexpected eof",
		"service unavailable", "bad gateway",
		"502", "503",
	},
	RateLimit: {
		"429", "rate limit", "ratelimit", "throttled", "too many requests",
	},
	BotDetected: {
		"cloudflare challenge", "bot protection", "akamai",
		"perimeterx", "datadome", "captcha",
	},
	AuthFailure: {
		"invalid password", "login failed", "authentication failed",
		"account locked", "invalid credentials",
	},
	Permanent: {
		"not found", "404", "deprecated",
		"unknown provider", "provider not supported",
	},
	Resource: {
		"out of memory", "heap out of memory", "enomem", "cannot allocate memory",
	},
}

// Option 分类器配置选项。
type Option func(*options)

type options struct {
	extra     map[Category][]string
	cacheSize int
	err       error
}

// maxCachedText 超过该长度的文本（例如整页 HTML）不进入缓存。
const maxCachedText = 1024

// WithCache 启用按文本缓存分类结果的 LRU，size 为最大条目数，<= 0 表示不缓存。
//
// 抓取任务的错误消息高度重复，缓存可跳过逐条模式扫描。
func WithCache(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithRule 为 c 追加匹配模式。模式不区分大小写，追加在内置模式之后。
//
// 类别之间的优先级保持固定顺序不变。c 不能是 Unknown。
func WithRule(c Category, patterns ...string) Option {
	return func(o *options) {
		if o.err != nil {
			return
		}
		if !c.Valid() || c == Unknown {
			o.err = fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
			return
		}
		added := 0
		for _, p := range patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			o.extra[c] = append(o.extra[c], p)
			added++
		}
		if added == 0 {
			o.err = fmt.Errorf("%w: %s", ErrEmptyPatterns, c)
		}
	}
}

type rule struct {
	category Category
	patterns []string
}

// Classifier 有序模式匹配分类器。创建后只读，可并发使用。
type Classifier struct {
	rules []rule
	cache *lru.Cache[string, Category]
}

// New 创建分类器。规则非法时返回错误。
func New(opts ...Option) (*Classifier, error) {
	o := options{extra: make(map[Category][]string)}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.err != nil {
		return nil, o.err
	}

	c := &Classifier{rules: make([]rule, 0, len(categories)-1)}
	for _, cat := range categories {
		if cat == Unknown {
			continue
		}
		patterns := make([]string, 0, len(defaultPatterns[cat])+len(o.extra[cat]))
		patterns = append(patterns, defaultPatterns[cat]...)
		patterns = append(patterns, o.extra[cat]...)
		c.rules = append(c.rules, rule{category: cat, patterns: patterns})
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, Category](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("xclassify: create cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

var defaultClassifier = func() *Classifier {
	c, err := New()
	if err != nil {
		panic(err) // 内置规则不可能非法
	}
	return c
}()

// Default 返回内置规则的分类器。
func Default() *Classifier {
	return defaultClassifier
}

// Classify 对信号分类。总是返回一个有效类别，不会 panic。
func (c *Classifier) Classify(sig Signal) Category {
	if c == nil {
		c = defaultClassifier
	}
	if err := sig.Error(); err != nil {
		var tagged Categorized
		if errors.As(err, &tagged) {
			if cat := tagged.FetchCategory(); cat.Valid() {
				return cat
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Transient
		}
	}

	text, ok := sig.view()
	if !ok || text == "" {
		return Unknown
	}
	if c.cache == nil || len(text) > maxCachedText {
		return c.scan(text)
	}
	if cat, ok := c.cache.Get(text); ok {
		return cat
	}
	cat := c.scan(text)
	c.cache.Add(text, cat)
	return cat
}

// CacheLen 返回缓存条目数，未启用缓存时为 0。
func (c *Classifier) CacheLen() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func (c *Classifier) scan(text string) Category {
	for _, r := range c.rules {
		for _, p := range r.patterns {
			if matches(text, p) {
				return r.category
			}
		}
	}
	return Unknown
}

// Classify 使用默认分类器对信号分类。
func Classify(sig Signal) Category {
	return defaultClassifier.Classify(sig)
}

// ClassifyError 是 Classify(Err(err)) 的简写。
func ClassifyError(err error) Category {
	return defaultClassifier.Classify(Err(err))
}

// ClassifyText 是 Classify(Text(s)) 的简写。
func ClassifyText(s string) Category {
	return defaultClassifier.Classify(Text(s))
}

func matches(text, pattern string) bool {
	if !isDigits(pattern) {
		return strings.Contains(text, pattern)
	}
	for from := 0; ; {
		i := strings.Index(text[from:], pattern)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(pattern)
		if (start == 0 || !isDigit(text[start-1])) && (end == len(text) || !isDigit(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
