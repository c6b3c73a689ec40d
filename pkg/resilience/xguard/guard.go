package xguard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrLimitReached 用户活跃任务数已达上限。
	ErrLimitReached = errors.New("xguard: active job limit reached")

	// ErrInvalidShardCount 分片数不是 2 的幂或超出范围。
	ErrInvalidShardCount = errors.New("xguard: invalid shard count")
)

const (
	defaultShardCount = 16
	maxShardCount     = 1 << 12
)

// Option 配置选项。
type Option func(*options)

type options struct {
	shardCount int
}

// WithShardCount 设置分片数量，必须为 2 的幂，上限 4096，默认 16。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

type shard struct {
	mu     sync.Mutex
	counts map[string]int
}

// Guard 按用户统计活跃任务数，并发安全。
type Guard struct {
	shards []shard
	mask   uint64
}

// New 创建资源守卫。
func New(opts ...Option) (*Guard, error) {
	o := options{shardCount: defaultShardCount}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	sc := o.shardCount
	if sc <= 0 || sc > maxShardCount || sc&(sc-1) != 0 {
		return nil, fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, sc)
	}

	g := &Guard{
		shards: make([]shard, sc),
		mask:   uint64(sc - 1),
	}
	for i := range g.shards {
		g.shards[i].counts = make(map[string]int)
	}
	return g, nil
}

// ActiveJobCount 返回用户当前活跃任务数，未知用户返回 0。
func (g *Guard) ActiveJobCount(user string) int {
	s := g.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[user]
}

// Increment 活跃任务数加一，返回新值。
func (g *Guard) Increment(user string) int {
	s := g.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[user]++
	return s.counts[user]
}

// Decrement 活跃任务数减一（不低于 0），返回新值。
// 归零的条目会被移除，map 不随历史用户数增长。
func (g *Guard) Decrement(user string) int {
	s := g.shardFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementLocked(user)
}

// TryAcquire 在活跃任务数小于 limit 时占用一个名额，返回释放函数。
//
// limit <= 0 表示不限制。释放函数幂等，多次调用只归还一次。
// 达到上限时返回 ErrLimitReached，不修改计数。
func (g *Guard) TryAcquire(user string, limit int) (release func(), err error) {
	s := g.shardFor(user)
	s.mu.Lock()
	if n := s.counts[user]; limit > 0 && n >= limit {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: user %q has %d active jobs (limit %d)", ErrLimitReached, user, n, limit)
	}
	s.counts[user]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.Decrement(user)
		})
	}, nil
}

// Snapshot 返回所有计数大于 0 的用户。
func (g *Guard) Snapshot() map[string]int {
	out := make(map[string]int)
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for user, n := range s.counts {
			out[user] = n
		}
		s.mu.Unlock()
	}
	return out
}

// Total 返回所有用户活跃任务数之和。
func (g *Guard) Total() int {
	total := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for _, n := range s.counts {
			total += n
		}
		s.mu.Unlock()
	}
	return total
}

// Reset 清空所有计数，主要用于测试隔离。
func (g *Guard) Reset() {
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		clear(s.counts)
		s.mu.Unlock()
	}
}

func (g *Guard) shardFor(user string) *shard {
	return &g.shards[xxhash.Sum64String(user)&g.mask]
}

// decrementLocked 调用方必须持有 s.mu。
func (s *shard) decrementLocked(user string) int {
	n := s.counts[user] - 1
	if n <= 0 {
		delete(s.counts, user)
		return 0
	}
	s.counts[user] = n
	return n
}
