package remediation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the remediation state of one backend.
type Phase string

const (
	PhaseOK          Phase = "ok"
	PhaseFailing     Phase = "failing"
	PhaseRemediating Phase = "remediating"
	PhaseCooldown    Phase = "cooldown"
)

// DefaultCooldown is the minimum interval between two attempts for one
// backend when none is configured.
const DefaultCooldown = 300 * time.Second

// MaxEvents is the number of events retained by a Controller.
const MaxEvents = 50

// Record is the remediation bookkeeping for one backend. A Record is a
// value; the controller replaces it whole on every transition.
type Record struct {
	Phase       Phase     `json:"phase"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	Attempts    int       `json:"attempts"`
	// ConsecutiveFailures counts unhealthy checks since the last healthy one.
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	Cooldown            time.Duration `json:"cooldown"`
}

// Event types.
const (
	EventAttempt = "attempt"
	EventOutcome = "outcome"
)

// Event is one entry in the controller's capped event list.
type Event struct {
	Time      time.Time `json:"time"`
	Backend   string    `json:"backend"`
	AttemptID string    `json:"attempt_id"`
	Type      string    `json:"type"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Outcome reports what MaybeRemediate did.
type Outcome struct {
	Phase Phase

	// Attempted is true when an action ran during this call.
	Attempted bool
	AttemptID string

	// Recovered is true when the action succeeded and the re-probe found
	// the backend healthy.
	Recovered bool

	// Err is the action's error, if any.
	Err error

	// CooldownRemaining is set when an attempt was due but suppressed.
	CooldownRemaining time.Duration
}

// Verify re-probes a backend after an action and reports whether it is
// healthy again.
type Verify func(ctx context.Context) bool

type entry struct {
	cooldown time.Duration
	rec      Record
}

// Controller tracks remediation state for a set of backends. It is safe for
// concurrent use; callers must not remediate the same backend from two
// goroutines at once, and a second concurrent call for one backend returns
// without acting.
type Controller struct {
	mu              sync.Mutex
	backends        map[string]*entry
	events          []Event
	defaultCooldown time.Duration
	now             func() time.Time
	newID           func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns a Controller. A non-positive defaultCooldown selects
// DefaultCooldown.
func New(defaultCooldown time.Duration, opts ...Option) *Controller {
	if defaultCooldown <= 0 {
		defaultCooldown = DefaultCooldown
	}
	c := &Controller{
		backends:        make(map[string]*entry),
		defaultCooldown: defaultCooldown,
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configure sets the cooldown for name. A non-positive cooldown selects the
// controller default. Existing bookkeeping is kept.
func (c *Controller) Configure(name string, cooldown time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(name)
	if cooldown <= 0 {
		cooldown = c.defaultCooldown
	}
	e.cooldown = cooldown
	rec := e.rec
	rec.Cooldown = cooldown
	e.rec = rec
}

// Remove forgets name.
func (c *Controller) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.backends, name)
}

// Record returns the current record for name and the cooldown still to run
// before the next attempt is allowed (zero when an attempt is allowed now).
func (c *Controller) Record(name string) (Record, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.backends[name]
	if !ok {
		return Record{Phase: PhaseOK, Cooldown: c.defaultCooldown}, 0
	}
	return e.rec, c.remainingLocked(e)
}

// Events returns up to limit events, newest first. limit <= 0 returns all.
func (c *Controller) Events(limit int) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(c.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, c.events[i])
	}
	return out
}

// MaybeRemediate advances name's remediation state given the latest
// classification.
//
// A healthy backend returns to ok. An unhealthy backend is attempted when it
// has never been remediated or its cooldown has elapsed; the attempt time is
// recorded before the action starts. After the action verify is called and
// the backend returns to ok if it reports healthy, or enters cooldown
// otherwise. A nil action still records the attempt and fails it with
// ErrNoAction, so the cooldown applies the same way.
func (c *Controller) MaybeRemediate(ctx context.Context, name string, healthy bool, action Action, verify Verify) Outcome {
	c.mu.Lock()
	e := c.entryLocked(name)
	rec := e.rec

	if rec.Phase == PhaseRemediating {
		c.mu.Unlock()
		return Outcome{Phase: PhaseRemediating}
	}

	if healthy {
		rec.Phase = PhaseOK
		rec.ConsecutiveFailures = 0
		e.rec = rec
		c.mu.Unlock()
		return Outcome{Phase: PhaseOK}
	}

	rec.ConsecutiveFailures++
	if rec.Phase == PhaseOK || rec.Phase == "" {
		rec.Phase = PhaseFailing
	}

	if remaining := c.remainingLocked(e); remaining > 0 {
		e.rec = rec
		c.mu.Unlock()
		return Outcome{Phase: rec.Phase, CooldownRemaining: remaining}
	}

	now := c.now()
	rec.Phase = PhaseRemediating
	rec.LastAttempt = now
	rec.AttemptID = c.newID()
	rec.Attempts++
	e.rec = rec
	c.appendEventLocked(Event{Time: now, Backend: name, AttemptID: rec.AttemptID, Type: EventAttempt})
	c.mu.Unlock()

	slog.Info("remediation attempt", "backend", name, "attempt_id", rec.AttemptID, "attempts", rec.Attempts)

	err := ErrNoAction
	if action != nil {
		err = runAction(ctx, action)
	}
	recovered := err == nil && verify != nil && verify(ctx)

	c.mu.Lock()
	rec = e.rec
	rec.LastError = ""
	if err != nil {
		rec.LastError = err.Error()
	}
	if recovered {
		rec.Phase = PhaseOK
	} else {
		rec.Phase = PhaseCooldown
	}
	e.rec = rec
	ev := Event{Time: c.now(), Backend: name, AttemptID: rec.AttemptID, Type: EventOutcome, Success: recovered}
	if err != nil {
		ev.Error = err.Error()
	}
	c.appendEventLocked(ev)
	c.mu.Unlock()

	if recovered {
		slog.Info("remediation succeeded", "backend", name, "attempt_id", rec.AttemptID)
	} else {
		slog.Warn("remediation did not recover backend", "backend", name, "attempt_id", rec.AttemptID, "err", err)
	}

	return Outcome{
		Phase:     rec.Phase,
		Attempted: true,
		AttemptID: rec.AttemptID,
		Recovered: recovered,
		Err:       err,
	}
}

// runAction invokes action, converting a panic into an error.
func runAction(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return action.Run(ctx)
}

func (c *Controller) entryLocked(name string) *entry {
	e, ok := c.backends[name]
	if !ok {
		e = &entry{cooldown: c.defaultCooldown, rec: Record{Phase: PhaseOK, Cooldown: c.defaultCooldown}}
		c.backends[name] = e
	}
	return e
}

// remainingLocked returns how long until e may be remediated again.
func (c *Controller) remainingLocked(e *entry) time.Duration {
	if e.rec.LastAttempt.IsZero() {
		return 0
	}
	elapsed := c.now().Sub(e.rec.LastAttempt)
	if elapsed >= e.cooldown {
		return 0
	}
	return e.cooldown - elapsed
}

func (c *Controller) appendEventLocked(ev Event) {
	c.events = append(c.events, ev)
	if len(c.events) > MaxEvents {
		c.events = append(c.events[:0:0], c.events[len(c.events)-MaxEvents:]...)
	}
}
