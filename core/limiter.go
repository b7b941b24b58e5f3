package core

import (
	"fmt"
	"sync"
)

// CallLimiter caps the number of AgentClient calls (retries included) a
// single round may issue.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter allowing max calls. If max == 0, calls
// are unlimited.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Acquire records one call and returns an error once the limit is exceeded.
func (l *CallLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("exceeded max agent calls per round: %d", l.max)
	}

	return nil
}

// Count returns the number of calls recorded so far.
func (l *CallLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}

	return l.max - l.count
}
