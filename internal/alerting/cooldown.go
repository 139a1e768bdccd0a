package alerting

import (
	"sync"
	"time"
)

// CooldownGate rate-limits outbound alerts process-wide. It is shared by
// every dispatcher in the process and deliberately coarse: one send, of any
// kind, on any channel, suppresses all alert categories until the window
// elapses.
type CooldownGate struct {
	mu         sync.Mutex
	cooldown   time.Duration
	lastSentAt time.Time // zero value means no alert has ever been sent
}

// NewCooldownGate creates a gate with the given minimum gap between sends.
func NewCooldownGate(cooldown time.Duration) *CooldownGate {
	return &CooldownGate{cooldown: cooldown}
}

// MaySend reports whether an alert may be sent at the given instant.
func (g *CooldownGate) MaySend(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maySendLocked(now)
}

// RecordSent marks an alert as sent. Last write wins.
func (g *CooldownGate) RecordSent(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSentAt = now
}

// TryAcquire checks and records under a single lock so two dispatch attempts
// racing at the window edge cannot both pass.
func (g *CooldownGate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.maySendLocked(now) {
		return false
	}
	g.lastSentAt = now
	return true
}

// LastSentAt returns the accepted timestamp of the most recent send, or the
// zero time if none.
func (g *CooldownGate) LastSentAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSentAt
}

func (g *CooldownGate) maySendLocked(now time.Time) bool {
	if g.lastSentAt.IsZero() {
		return true
	}
	return now.Sub(g.lastSentAt) >= g.cooldown
}
