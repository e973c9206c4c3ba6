// Package ratelimit throttles MCP tool calls with per-key token buckets, so
// an agent cannot queue unbounded simulation work.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is returned by CheckLimit when a tool's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter hands out tokens per key. Every key starts with a full bucket of
// burst tokens that refills at rate tokens per second. Safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter returns a Limiter refilling at rate tokens/sec up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: map[string]*bucket{},
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// refill returns key's bucket topped up to now. l.mu must be held.
func (l *Limiter) refill(key string) *bucket {
	now := l.nowFunc()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
		return b
	}
	// A clock that steps backwards earns nothing.
	if dt := now.Sub(b.seen); dt > 0 {
		b.tokens = math.Min(float64(l.burst), b.tokens+l.rate*dt.Seconds())
		b.seen = now
	}
	return b
}

// Allow takes a token for key, reporting false if none is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b := l.refill(key); b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter is the wait until key holds a whole token: 0 when one is
// available now, -1 when the bucket never refills.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	missing := 1 - l.refill(key).tokens
	switch {
	case missing <= 0:
		return 0
	case l.rate <= 0:
		return -1
	}
	return time.Duration(math.Ceil(missing / l.rate * float64(time.Second)))
}

// Tool names served by the MCP server.
const (
	ToolSimulate   = "opynions_simulate"
	ToolSweep      = "opynions_sweep"
	ToolListSweeps = "opynions_list_sweeps"
	ToolShowSweep  = "opynions_show_sweep"
)

// ToolLimiters holds one Limiter per tool name.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the server's budgets. A sweep can occupy every
// CPU for minutes, so it gets one call at a time and four per minute.
func NewToolLimiters() ToolLimiters {
	perMinute := func(n float64) float64 { return n / 60 }
	return ToolLimiters{
		ToolSimulate:   NewLimiter(perMinute(30), 5),
		ToolSweep:      NewLimiter(perMinute(4), 1),
		ToolListSweeps: NewLimiter(perMinute(60), 10),
		ToolShowSweep:  NewLimiter(perMinute(60), 10),
	}
}

// CheckLimit spends a token for tool, returning an error wrapping
// ErrRateLimited when none is left. Tools without a limiter always pass.
func CheckLimit(limiters ToolLimiters, tool string) error {
	l, ok := limiters[tool]
	if !ok || l.Allow(tool) {
		return nil
	}
	if wait := l.RetryAfter(tool); wait > 0 {
		return fmt.Errorf("%w for %s, retry in %s", ErrRateLimited, tool, wait.Round(time.Second))
	}
	return fmt.Errorf("%w for %s", ErrRateLimited, tool)
}
