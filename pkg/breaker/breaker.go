// Package breaker 实现保护外部账本调用的三态熔断器
package breaker

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 连续失败达到阈值后打开, 冷却期结束放行一次探测请求
type CircuitBreaker struct {
	mu    sync.Mutex
	clock clock.Clock

	failureThreshold uint32
	timeout          time.Duration

	state        State
	failureCount uint32
	successCount uint64
	lastFailure  time.Time
}

func New(failureThreshold uint32, timeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &CircuitBreaker{
		clock:            clk,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		state:            StateClosed,
	}
}

// CanExecute 判断当前是否允许发起外部调用
// Open 状态下冷却期一到, 转入 HalfOpen 并放行探测请求
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.clock.Now().Sub(b.lastFailure) >= b.timeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess 任意状态下成功即重置为 Closed
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	b.failureCount = 0
	b.state = StateClosed
}

// RecordFailure 累计失败, HalfOpen 下的失败立即回到 Open
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.clock.Now()

	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) FailureCount() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset 恢复初始 Closed 状态 (备份恢复后调用)
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.lastFailure = time.Time{}
}
