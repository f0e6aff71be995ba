// Package scanqueue is the per-user admission gate for scans. It enforces
// the one-active-ticket-per-user rule: concurrent requests for a busy user
// coalesce onto the running ticket instead of triggering duplicate fetches.
package scanqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Reason string

const (
	ReasonManual    Reason = "manual"
	ReasonScheduled Reason = "scheduled"
)

type Status int

const (
	StatusAdmitted Status = iota
	StatusCoalesced
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAdmitted:
		return "admitted"
	case StatusCoalesced:
		return "coalesced"
	default:
		return "rejected"
	}
}

// Ticket is one admitted scan. It is owned by the queue until handed to a
// single orchestrator run, and carries the subscriber set interested in its
// progress.
type Ticket struct {
	ID         string
	UserID     string
	Reason     Reason
	EnqueuedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	subscribers map[string]struct{}
}

// Context is cancelled when the ticket is cancelled; the orchestrator
// checks it cooperatively between game fetches.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Subscribers returns a copy of the attached connection IDs.
func (t *Ticket) Subscribers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subscribers))
	for id := range t.subscribers {
		out = append(out, id)
	}
	return out
}

func (t *Ticket) attach(subscriber string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subscriber != "" {
		t.subscribers[subscriber] = struct{}{}
	}
}

// detach removes a subscriber and reports whether any remain.
func (t *Ticket) detach(subscriber string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, subscriber)
	return len(t.subscribers)
}

// Admission is the outcome of Submit. Ticket is set for admitted and
// coalesced outcomes; RejectReason for rejections.
type Admission struct {
	Status       Status
	Ticket       *Ticket
	RejectReason string
}

// Queue tracks active tickets and per-user scan cooldowns.
type Queue struct {
	cooldown time.Duration

	mu       sync.Mutex
	active   map[string]*Ticket
	lastDone map[string]time.Time
	now      func() time.Time
}

func New(cooldown time.Duration) *Queue {
	return &Queue{
		cooldown: cooldown,
		active:   make(map[string]*Ticket),
		lastDone: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Submit admits a scan for userID, coalesces onto a running one, or rejects
// a scheduled request still inside the cooldown. Manual requests skip the
// cooldown so a user can always force a refresh.
func (q *Queue) Submit(userID string, reason Reason, subscriber string) Admission {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.active[userID]; ok {
		t.attach(subscriber)
		return Admission{Status: StatusCoalesced, Ticket: t}
	}

	if reason == ReasonScheduled && q.cooldown > 0 {
		if last, ok := q.lastDone[userID]; ok && q.now().Sub(last) < q.cooldown {
			return Admission{Status: StatusRejected, RejectReason: "cooldown"}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticket{
		ID:          uuid.NewString(),
		UserID:      userID,
		Reason:      reason,
		EnqueuedAt:  q.now(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string]struct{}),
	}
	t.attach(subscriber)
	q.active[userID] = t
	return Admission{Status: StatusAdmitted, Ticket: t}
}

// Complete marks the ticket's scan finished and starts the user's cooldown.
func (q *Queue) Complete(t *Ticket) {
	q.remove(t, true)
}

// Fail removes the ticket without starting a cooldown, so a failed scan can
// be retried immediately. Reporting the failure to subscribers is the
// orchestrator's job.
func (q *Queue) Fail(t *Ticket) {
	q.remove(t, false)
}

func (q *Queue) remove(t *Ticket, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.active[t.UserID]; ok && cur == t {
		delete(q.active, t.UserID)
		if done {
			q.lastDone[t.UserID] = q.now()
		}
	}
	t.cancel()
}

// Detach drops a subscriber from the user's active ticket, if any. A manual
// scan whose last subscriber disconnects is cancelled; scheduled scans keep
// running server-side regardless of who is watching.
func (q *Queue) Detach(userID, subscriber string) {
	q.mu.Lock()
	t, ok := q.active[userID]
	q.mu.Unlock()
	if !ok {
		return
	}
	if t.detach(subscriber) == 0 && t.Reason == ReasonManual {
		t.cancel()
	}
}

// Active returns the user's current ticket, or nil.
func (q *Queue) Active(userID string) *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active[userID]
}
