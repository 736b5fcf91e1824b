package resilience

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateTracker 缓存上游在响应头中给出的剩余配额与重置时间。
// 每次响应都会回灌一次，因此下一次调用开始前即可判断是否需要等待。
type RateTracker struct {
	mu sync.Mutex

	remaining int
	reset     time.Time
	known     bool
	now       func() time.Time
}

// NewRateTracker 构造空白限流记录，首个响应到来前不做任何等待。
func NewRateTracker() *RateTracker {
	return &RateTracker{now: time.Now}
}

// Observe 从响应头解析 X-RateLimit-Remaining / X-RateLimit-Reset 并更新缓存。
func (t *RateTracker) Observe(header http.Header) {
	remainingRaw := header.Get("X-RateLimit-Remaining")
	resetRaw := header.Get("X-RateLimit-Reset")
	if remainingRaw == "" {
		return
	}

	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = remaining
	t.known = true
	if resetRaw != "" {
		if unix, err := strconv.ParseInt(resetRaw, 10, 64); err == nil {
			t.reset = time.Unix(unix, 0)
		}
	}
}

// Delay 返回下一次调用前应等待的时长；配额未耗尽或重置已过则为 0。
func (t *RateTracker) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.known || t.remaining > 0 {
		return 0
	}
	wait := t.reset.Sub(t.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// retryAfterDelay 解析 Retry-After 头（秒数或 HTTP 日期），解析失败返回 0。
func retryAfterDelay(header http.Header, now time.Time) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
