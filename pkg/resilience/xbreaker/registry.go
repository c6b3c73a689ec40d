package xbreaker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
)

// Decision 是 [Registry.Check] 的结果。
type Decision struct {
	Allowed bool
	Reason  string
}

// Snapshot 单个提供方的状态快照。
type Snapshot struct {
	State    State
	Failures int
}

// MarshalJSON 以状态名称输出，便于运维面板直接展示。
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State    string `json:"state"`
		Failures int    `json:"failures"`
	}{s.State.String(), s.Failures})
}

// entry 提供方熔断条目。
//
// failures 是自维护的连续失败数：gobreaker 在状态切换时会清零 Counts，
// 无法用于对外展示打开后的失败数。
type entry struct {
	cb       *gobreaker.CircuitBreaker[struct{}]
	failures int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Registry 按提供方管理熔断器。
//
// 零值不可用，必须通过 [NewRegistry] 创建。所有方法并发安全。
type Registry struct {
	opts   options
	policy TripPolicy
	shards []shard
	mask   uint64
}

// NewRegistry 创建熔断器注册表。
func NewRegistry(opts ...Option) (*Registry, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		opts:   o,
		policy: NewConsecutiveFailures(o.threshold),
		shards: make([]shard, o.shardCount),
		mask:   uint64(o.shardCount - 1),
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	return r, nil
}

// Threshold 返回触发熔断的连续失败次数。
func (r *Registry) Threshold() int {
	return int(r.opts.threshold)
}

// Check 判断是否允许访问提供方，未知 key 会以 closed 状态惰性创建。
func (r *Registry) Check(key string) Decision {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := r.getOrCreateLocked(s, key)
	if e.cb.State() == StateOpen {
		return Decision{Reason: openReason(key, e.failures)}
	}
	return Decision{Allowed: true}
}

// Guard 与 Check 相同，但以错误形式返回拒绝：允许时返回 nil，
// 拒绝时返回 *BreakerError（包装 ErrOpenState，不可重试）。
func (r *Registry) Guard(key string) error {
	d := r.Check(key)
	if d.Allowed {
		return nil
	}
	return &BreakerError{Err: ErrOpenState, Provider: key, Reason: d.Reason, State: StateOpen}
}

// RecordFailure 记录一次失败。
//
// permanent 与 auth_failure 不是基础设施问题，直接忽略，也不会创建条目；
// 其他类别累加连续失败数，达到阈值时打开熔断器。
func (r *Registry) RecordFailure(key string, c xclassify.Category) {
	if exempt(c) {
		return
	}

	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := r.getOrCreateLocked(s, key)
	e.failures++
	if e.cb.State() == StateOpen {
		return
	}
	// 通过一次必然失败的 Execute 驱动 gobreaker 计数和状态切换
	_, _ = e.cb.Execute(func() (struct{}, error) {
		return struct{}{}, errRecordedFailure
	})
}

// RecordSuccess 记录一次成功：无条件把失败数清零并回到 closed。
func (r *Registry) RecordSuccess(key string) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := r.getOrCreateLocked(s, key)
	e.failures = 0

	prev := e.cb.State()
	if prev == StateClosed {
		_, _ = e.cb.Execute(func() (struct{}, error) {
			return struct{}{}, nil
		})
		return
	}
	// gobreaker 没有从 open 直接关闭的接口，重建即可
	e.cb = r.newBreaker(key)
	r.notify(key, prev, StateClosed)
}

// Reset 删除提供方条目，下次访问时以 closed 状态重新创建。
func (r *Registry) Reset(key string) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	if prev := e.cb.State(); prev != StateClosed {
		r.notify(key, prev, StateClosed)
	}
}

// ResetAll 清空所有条目。与 Reset 一样，非 closed 的条目会上报切换到 closed。
func (r *Registry) ResetAll() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			if prev := e.cb.State(); prev != StateClosed {
				r.notify(key, prev, StateClosed)
			}
		}
		clear(s.entries)
		s.mu.Unlock()
	}
}

// Summary 返回所有提供方的状态快照。
//
// 分片逐个加锁，结果不是全局一致的时间点视图，但每个条目自身是一致的。
func (r *Registry) Summary() map[string]Snapshot {
	out := make(map[string]Snapshot)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, e := range s.entries {
			out[key] = Snapshot{State: e.cb.State(), Failures: e.failures}
		}
		s.mu.Unlock()
	}
	return out
}

// State 返回提供方当前状态，未知 key 返回 StateClosed 且不创建条目。
func (r *Registry) State(key string) State {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.cb.State()
	}
	return StateClosed
}

// Len 返回当前条目数量。
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (r *Registry) shardFor(key string) *shard {
	return &r.shards[xxhash.Sum64String(key)&r.mask]
}

// getOrCreateLocked 调用方必须持有 s.mu。
func (r *Registry) getOrCreateLocked(s *shard, key string) *entry {
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &entry{cb: r.newBreaker(key)}
	s.entries[key] = e
	return e
}

func (r *Registry) newBreaker(key string) *gobreaker.CircuitBreaker[struct{}] {
	st := gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     r.opts.timeout(),
		ReadyToTrip: r.policy.ReadyToTrip,
	}
	if r.opts.onStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			r.opts.onStateChange(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

func (r *Registry) notify(key string, from, to State) {
	if r.opts.onStateChange != nil {
		r.opts.onStateChange(key, from, to)
	}
}

func exempt(c xclassify.Category) bool {
	return c == xclassify.Permanent || c == xclassify.AuthFailure
}

func openReason(key string, failures int) string {
	return fmt.Sprintf("Circuit open for provider %q after %d consecutive failures", key, failures)
}
