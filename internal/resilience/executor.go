package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Options 汇总执行器的全部策略参数，零值字段由 NewExecutor 填充默认值。
type Options struct {
	MaxRetries       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	RateWaitCeiling  time.Duration
}

// Attempt 表示一次底层远端调用，返回响应或网络级错误。
type Attempt func(ctx context.Context) (*http.Response, error)

// Executor 把限流检查、熔断门控、尝试、分类与重试组合成一条有序链。
// 同一进程内应只构造一个实例并在所有远端调用方之间共享。
type Executor struct {
	opts    Options
	breaker *CircuitBreaker
	limiter *RateTracker
	logger  *logrus.Logger

	// sleep/jitter 可被测试替换，换取确定性的重试时序断言。
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewExecutor 构造共享执行器；logger 不能为空。
func NewExecutor(opts Options, logger *logrus.Logger) *Executor {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	if opts.RateWaitCeiling <= 0 {
		opts.RateWaitCeiling = 15 * time.Minute
	}

	return &Executor{
		opts:    opts,
		breaker: NewCircuitBreaker(opts.FailureThreshold, opts.SuccessThreshold, opts.Cooldown),
		limiter: NewRateTracker(),
		logger:  logger,
		sleep:   sleepContext,
		jitter:  rand.Float64,
	}
}

// Breaker 暴露共享熔断器，仅用于诊断端点展示状态。
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// Do 按策略链执行一次远端调用。瞬时失败（超时/重置/502/503/504）按
// 指数退避重试；限流响应被等待消化且不消耗重试次数；熔断打开期间
// 不发起任何网络调用，直接返回 CircuitOpenError。
func (e *Executor) Do(ctx context.Context, op string, attempt Attempt) (*http.Response, error) {
	var rateWaited time.Duration
	retries := 0

	for {
		if !e.breaker.Allow() {
			return nil, &CircuitOpenError{Op: op}
		}

		if wait := e.limiter.Delay(); wait > 0 {
			var err error
			rateWaited, err = e.waitForQuota(ctx, op, wait, rateWaited)
			if err != nil {
				return nil, err
			}
		}

		resp, err := attempt(ctx)
		if err != nil {
			e.breaker.RecordFailure()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTransientNetErr(err) {
				return nil, &PermanentError{Op: op, Err: err}
			}
			if retries >= e.opts.MaxRetries {
				return nil, &RetryExhaustedError{Op: op, Attempts: retries + 1, Err: err}
			}
			if serr := e.backoff(ctx, op, retries); serr != nil {
				return nil, serr
			}
			retries++
			continue
		}

		e.limiter.Observe(resp.Header)

		if isRateLimited(resp) {
			// 限流优先按 Retry-After / reset 等待，不算作失败也不计入重试。
			wait := retryAfterDelay(resp.Header, time.Now())
			if wait == 0 {
				wait = e.limiter.Delay()
			}
			if wait == 0 {
				wait = time.Second
			}
			drainAndClose(resp)
			var werr error
			rateWaited, werr = e.waitForQuota(ctx, op, wait, rateWaited)
			if werr != nil {
				return nil, werr
			}
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			status := resp.StatusCode
			drainAndClose(resp)
			e.breaker.RecordFailure()
			if retries >= e.opts.MaxRetries {
				return nil, &RetryExhaustedError{Op: op, Attempts: retries + 1, Status: status}
			}
			if serr := e.backoff(ctx, op, retries); serr != nil {
				return nil, serr
			}
			retries++
			continue
		}

		e.breaker.RecordSuccess()
		return resp, nil
	}
}

// waitForQuota 执行一次限流等待，并保证累计等待不超过 RateWaitCeiling。
func (e *Executor) waitForQuota(ctx context.Context, op string, wait, waited time.Duration) (time.Duration, error) {
	if waited+wait > e.opts.RateWaitCeiling {
		return waited, &PermanentError{
			Op:  op,
			Err: fmt.Errorf("限流等待超过上限 %s", e.opts.RateWaitCeiling),
		}
	}
	e.logger.WithFields(logrus.Fields{
		"action":  "rate_limit_wait",
		"op":      op,
		"wait_ms": wait.Milliseconds(),
	}).Warn("等待上游配额重置")
	if err := e.sleep(ctx, wait); err != nil {
		return waited, err
	}
	return waited + wait, nil
}

// backoff 计算第 n 次重试前的延时：base·2^n ± 10% 抖动，封顶 MaxBackoff。
func (e *Executor) backoff(ctx context.Context, op string, retry int) error {
	delay := e.opts.InitialBackoff << uint(retry)
	if delay > e.opts.MaxBackoff || delay <= 0 {
		delay = e.opts.MaxBackoff
	}
	factor := 0.9 + 0.2*e.jitter()
	delay = time.Duration(float64(delay) * factor)

	e.logger.WithFields(logrus.Fields{
		"action":   "retry_backoff",
		"op":       op,
		"retry":    retry + 1,
		"delay_ms": delay.Milliseconds(),
	}).Debug("瞬时失败后退避")

	return e.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransientStatus 判断网关类 5xx 是否值得重试。
func isTransientStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isRateLimited 识别明确的配额耗尽响应：429，或带限流语义的 403。
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("Retry-After") != "" {
		return true
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// isTransientNetErr 识别可重试的网络层错误：超时、连接重置、半途断开。
func isTransientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return false
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
