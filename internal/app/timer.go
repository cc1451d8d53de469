package app

import (
	"context"
	"time"

	"livequiz-service/internal/domain"
)

// DefaultPollInterval is how often a client re-derives the remaining time
// between session pushes. It also bounds the lock-transition skew between
// independently-clocked clients (plus push propagation delay).
const DefaultPollInterval = 250 * time.Millisecond

// Remaining derives the whole seconds left in the answer window. Each client
// computes this locally from the shared questionStartAt; there is no central
// tick source. The remaining interval is floored, so the displayed value hits
// 0 within the final fractional second and is never negative.
func Remaining(now time.Time, session domain.Session) int {
	duration := session.DurationSeconds
	if duration <= 0 {
		duration = domain.DefaultDurationSeconds
	}
	if session.QuestionStartAt.IsZero() {
		return duration
	}
	left := time.Duration(duration)*time.Second - now.Sub(session.QuestionStartAt)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Locked reports whether player input is closed: the session is not running
// or the window has elapsed. No client ever writes a "time's up" signal;
// every client infers this independently.
func Locked(now time.Time, session domain.Session) bool {
	return session.Status != domain.StatusRunning || Remaining(now, session) <= 0
}

// Tick is one local timer derivation.
type Tick struct {
	QuestionIndex int  `json:"questionIndex"`
	Remaining     int  `json:"remaining"`
	Locked        bool `json:"locked"`
}

// Countdown re-derives the timer on a fixed interval and immediately on
// every session push, emitting ticks until the context is cancelled or the
// session stream closes.
type Countdown struct {
	interval time.Duration
	clock    func() time.Time
}

func NewCountdown(interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Countdown{interval: interval, clock: time.Now}
}

// Run consumes session pushes and emits ticks on out. It closes out on
// return; the caller owns cancellation via ctx.
func (c *Countdown) Run(ctx context.Context, sessions <-chan domain.Session, out chan<- Tick) {
	defer close(out)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var current domain.Session
	var have bool
	for {
		select {
		case <-ctx.Done():
			return
		case session, ok := <-sessions:
			if !ok {
				return
			}
			current, have = session, true
		case <-ticker.C:
		}
		if !have {
			continue
		}
		now := c.clock()
		tick := Tick{
			QuestionIndex: current.CurrentQuestionIndex,
			Remaining:     Remaining(now, current),
			Locked:        Locked(now, current),
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return
		}
	}
}
