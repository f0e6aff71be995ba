// Package ratelimit implements the single shared gate in front of the
// provider API. All outbound calls, for every user, acquire from one
// Limiter instance so the deployment as a whole stays inside the
// provider's published quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned when a caller would have to wait longer
// than the configured bound for quota.
var ErrQuotaExceeded = errors.New("ratelimit: wait bound exceeded")

type grant struct {
	at   time.Time
	cost int
}

type waiter struct {
	cost  int
	ready chan *Permit
}

// Limiter grants up to max units within any rolling window. Waiters are
// served strictly first-come first-served so early scans are never starved
// by later ones.
type Limiter struct {
	window  time.Duration
	max     int
	maxWait time.Duration

	mu      sync.Mutex
	grants  []*grant
	waiters []*waiter
	timer   *time.Timer
	now     func() time.Time
}

func New(window time.Duration, max int, maxWait time.Duration) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		maxWait: maxWait,
		now:     time.Now,
	}
}

// Permit represents granted quota. ReleaseEarly returns it if the call was
// aborted before being issued.
type Permit struct {
	l *Limiter
	g *grant
}

// Acquire blocks until cost units are available within the rolling window,
// the context is cancelled, or the configured max wait elapses. A cancelled
// or timed-out caller leaves the queue without consuming quota.
func (l *Limiter) Acquire(ctx context.Context, cost int) (*Permit, error) {
	if cost <= 0 {
		cost = 1
	}
	if cost > l.max {
		return nil, fmt.Errorf("ratelimit: cost %d exceeds window quota %d", cost, l.max)
	}

	l.mu.Lock()
	l.pruneLocked()
	if len(l.waiters) == 0 && l.availableLocked() >= cost {
		p := l.grantLocked(cost)
		l.mu.Unlock()
		return p, nil
	}

	w := &waiter{cost: cost, ready: make(chan *Permit, 1)}
	l.waiters = append(l.waiters, w)
	l.scheduleWakeLocked()
	l.mu.Unlock()

	var maxWaitC <-chan time.Time
	if l.maxWait > 0 {
		t := time.NewTimer(l.maxWait)
		defer t.Stop()
		maxWaitC = t.C
	}

	select {
	case p := <-w.ready:
		return p, nil
	case <-ctx.Done():
		if p := l.abandon(w); p != nil {
			// Granted at the same instant; hand the quota back.
			p.ReleaseEarly()
		}
		return nil, ctx.Err()
	case <-maxWaitC:
		if p := l.abandon(w); p != nil {
			return p, nil
		}
		return nil, ErrQuotaExceeded
	}
}

// ReleaseEarly returns the permit's quota, for calls aborted before use.
// Safe to call more than once.
func (p *Permit) ReleaseEarly() {
	if p == nil || p.g == nil {
		return
	}
	p.l.mu.Lock()
	for i, g := range p.l.grants {
		if g == p.g {
			p.l.grants = append(p.l.grants[:i], p.l.grants[i+1:]...)
			break
		}
	}
	p.g = nil
	p.l.dispatchLocked()
	p.l.mu.Unlock()
}

// abandon removes w from the wait list. If the dispatcher granted w in the
// meantime, the permit is drained and returned so it can be kept or released.
func (l *Limiter) abandon(w *waiter) *Permit {
	l.mu.Lock()
	for i, cand := range l.waiters {
		if cand == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			l.dispatchLocked()
			l.mu.Unlock()
			return nil
		}
	}
	l.mu.Unlock()

	select {
	case p := <-w.ready:
		return p
	default:
		return nil
	}
}

func (l *Limiter) availableLocked() int {
	used := 0
	for _, g := range l.grants {
		used += g.cost
	}
	return l.max - used
}

func (l *Limiter) pruneLocked() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for ; i < len(l.grants); i++ {
		if l.grants[i].at.After(cutoff) {
			break
		}
	}
	l.grants = l.grants[i:]
}

func (l *Limiter) grantLocked(cost int) *Permit {
	g := &grant{at: l.now(), cost: cost}
	l.grants = append(l.grants, g)
	return &Permit{l: l, g: g}
}

// dispatchLocked serves waiters in FIFO order while quota allows. A large
// request at the head blocks those behind it; that is the fairness contract.
func (l *Limiter) dispatchLocked() {
	l.pruneLocked()
	for len(l.waiters) > 0 {
		head := l.waiters[0]
		if l.availableLocked() < head.cost {
			break
		}
		head.ready <- l.grantLocked(head.cost)
		l.waiters = l.waiters[1:]
	}
	l.scheduleWakeLocked()
}

// scheduleWakeLocked arms a timer for the moment the oldest grant leaves
// the window, so queued waiters are served without polling.
func (l *Limiter) scheduleWakeLocked() {
	if len(l.waiters) == 0 || len(l.grants) == 0 {
		return
	}
	d := l.grants[0].at.Add(l.window).Sub(l.now())
	if d < 0 {
		d = 0
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, func() {
		l.mu.Lock()
		l.dispatchLocked()
		l.mu.Unlock()
	})
}
