package resilience

import (
	"sync"
	"time"
)

// State 描述熔断器所处阶段。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String 返回状态名，供日志字段使用。
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

// CircuitBreaker 实现 CLOSED → OPEN → HALF_OPEN → CLOSED 的标准状态机。
// 连续 failureThreshold 次失败打开；冷却期后进入 HALF_OPEN，
// 同一时刻仅放行一个探测请求；连续 successThreshold 次探测成功关闭，
// 任何一次探测失败立即回到 OPEN。
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// NewCircuitBreaker 按阈值构造熔断器；now 可被测试替换。
func NewCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow 判断本次调用是否放行。OPEN 且未过冷却期时直接拒绝，不发起网络调用。
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probing = true
		return true
	case StateHalfOpen:
		// 半开期间只允许一个在途探测。
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess 记录一次成功调用，HALF_OPEN 下累计探测成功数。
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probing = false
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure 记录一次失败调用，按状态推进状态机。
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
		b.successes = 0
	}
}

// State 返回当前状态快照。
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
