// Package ratelimit 提供按操作名统计的滑动窗口限流器
package ratelimit

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"vault-core/pkg/errno"
)

const window = time.Minute

// Limiter 固定 60s 滑动窗口, 按操作名独立计数
// 默认所有操作共用 maxPerMinute, 可为单个操作单独设置配额
type Limiter struct {
	mu           sync.Mutex
	clock        clock.Clock
	maxPerMinute int
	overrides    map[string]int
	requests     map[string][]time.Time
}

func New(maxPerMinute int, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Limiter{
		clock:        clk,
		maxPerMinute: maxPerMinute,
		overrides:    make(map[string]int),
		requests:     make(map[string][]time.Time),
	}
}

// SetOperationLimit 为单个操作设置独立配额
func (l *Limiter) SetOperationLimit(operation string, maxPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[operation] = maxPerMinute
}

func (l *Limiter) limitFor(operation string) int {
	if n, ok := l.overrides[operation]; ok {
		return n
	}
	return l.maxPerMinute
}

// Check 窗口内未达上限时记录一次请求, 已达上限返回 ErrRateLimitExceeded
func (l *Limiter) Check(operation string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-window)

	kept := l.requests[operation][:0]
	for _, ts := range l.requests[operation] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limitFor(operation) {
		l.requests[operation] = kept
		return errno.ErrRateLimitExceeded
	}

	l.requests[operation] = append(kept, now)
	return nil
}

// Remaining 返回该操作当前窗口内剩余配额
func (l *Limiter) Remaining(operation string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-window)
	n := 0
	for _, ts := range l.requests[operation] {
		if ts.After(cutoff) {
			n++
		}
	}
	limit := l.limitFor(operation)
	if n >= limit {
		return 0
	}
	return limit - n
}

// SetLimit 调整每分钟上限, 已记录的请求保持不变
func (l *Limiter) SetLimit(maxPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPerMinute = maxPerMinute
}

func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxPerMinute
}

// Reset 清空所有操作的窗口计数
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = make(map[string][]time.Time)
}
