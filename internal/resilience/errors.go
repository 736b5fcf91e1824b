package resilience

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen 标记熔断器处于 OPEN 状态导致的快速失败，
// 调用方可通过 errors.Is 与真实远端失败区分。
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitOpenError 携带操作名，便于日志定位是哪类调用被熔断。
type CircuitOpenError struct {
	Op string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: 熔断器打开，调用被拒绝", e.Op)
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// RetryExhaustedError 表示瞬时错误重试次数耗尽后的最终失败。
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Status   int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %d 次尝试后仍失败: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %d 次尝试后仍失败，最后状态码 %d", e.Op, e.Attempts, e.Status)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// PermanentError 表示不可重试的失败，携带操作名、资源标识与状态/报文。
type PermanentError struct {
	Op       string
	Resource string
	Status   int
	Body     string
	Err      error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s %s: 状态码 %d: %s", e.Op, e.Resource, e.Status, e.Body)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}
