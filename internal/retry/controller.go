package retry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotabar/internal/discover"
)

// Phase names a segment of the backoff schedule with a constant delay and a
// fixed attempt budget.
type Phase int

const (
	PhaseFast Phase = iota
	PhaseSlow
	PhaseWaiting
)

func (p Phase) String() string {
	switch p {
	case PhaseFast:
		return "fast"
	case PhaseSlow:
		return "slow"
	case PhaseWaiting:
		return "waiting"
	}
	return "unknown"
}

// Schedule describes the phased backoff: a burst of fast attempts while the
// service is probably still starting, a tail of slow attempts, then a
// terminal waiting state that only a manual reconnect leaves.
type Schedule struct {
	FastDelay    time.Duration
	SlowDelay    time.Duration
	FastAttempts int
	SlowAttempts int
}

func DefaultSchedule() Schedule {
	return Schedule{
		FastDelay:    5 * time.Second,
		SlowDelay:    time.Minute,
		FastAttempts: 12,
		SlowAttempts: 9,
	}
}

// Next returns the phase of the given attempt (0-based) and the delay to
// wait after it fails. ok is false once the attempt budget is exhausted and
// the controller must park in the waiting state instead of running the
// attempt.
func (s Schedule) Next(attempt int) (time.Duration, Phase, bool) {
	switch {
	case attempt < s.FastAttempts:
		return s.FastDelay, PhaseFast, true
	case attempt < s.FastAttempts+s.SlowAttempts:
		return s.SlowDelay, PhaseSlow, true
	default:
		return 0, PhaseWaiting, false
	}
}

// ConnectionResolver runs one discovery pass; nil means not found.
type ConnectionResolver interface {
	Detect(ctx context.Context) *discover.ResolvedConnection
}

// Controller drives the resolver with phased backoff until success, context
// cancellation, or budget exhaustion. At most one attempt is in flight at
// any instant: the next attempt is scheduled only after the previous one
// settles.
type Controller struct {
	resolver ConnectionResolver
	schedule Schedule
	log      *zap.Logger

	onAttempt  func(attempt int, phase Phase)
	onResolved func(discover.ResolvedConnection)
	onWaiting  func()

	mu      sync.Mutex
	attempt int
	phase   Phase

	reconnect chan struct{}
}

type Option func(*Controller)

func WithSchedule(s Schedule) Option {
	return func(c *Controller) { c.schedule = s }
}

// WithOnAttempt registers the "loading" lifecycle callback, invoked before
// each resolution attempt with its 0-based number.
func WithOnAttempt(fn func(attempt int, phase Phase)) Option {
	return func(c *Controller) { c.onAttempt = fn }
}

func WithOnResolved(fn func(discover.ResolvedConnection)) Option {
	return func(c *Controller) { c.onResolved = fn }
}

func WithOnWaiting(fn func()) Option {
	return func(c *Controller) { c.onWaiting = fn }
}

func NewController(resolver ConnectionResolver, log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		resolver:  resolver,
		schedule:  DefaultSchedule(),
		log:       log,
		reconnect: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current attempt counter and phase.
func (c *Controller) State() (int, Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt, c.phase
}

// Reconnect cancels any pending scheduled attempt and restarts the schedule
// from the first fast attempt. Valid in any phase, including waiting and
// after a successful resolution. It never blocks.
func (c *Controller) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// Start launches the retry loop in its own goroutine and returns
// immediately. The loop exits when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	for {
		attempt := c.currentAttempt()
		delay, phase, ok := c.schedule.Next(attempt)
		if !ok {
			// Budget exhausted. Entering waiting raises no error: the
			// service commonly has not finished starting, so the display
			// layer offers a manual reconnect instead.
			c.setPhase(PhaseWaiting)
			c.log.Info("retry budget exhausted, waiting for manual reconnect",
				zap.Int("attempts", attempt))
			if c.onWaiting != nil {
				c.onWaiting()
			}
			if !c.awaitReconnect(ctx) {
				return
			}
			continue
		}

		c.setPhase(phase)
		if c.onAttempt != nil {
			c.onAttempt(attempt, phase)
		}

		if conn := c.detect(ctx); conn != nil {
			c.log.Info("connection resolved",
				zap.Int("attempt", attempt), zap.Int("port", conn.ConnectPort))
			if c.onResolved != nil {
				c.onResolved(*conn)
			}
			// Halt until an explicit reconnect command.
			if !c.awaitReconnect(ctx) {
				return
			}
			continue
		}

		c.bumpAttempt()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.reconnect:
			timer.Stop()
			c.resetAttempts()
		case <-timer.C:
		}
	}
}

// awaitReconnect parks until a reconnect command or shutdown. It reports
// false when the context ended.
func (c *Controller) awaitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.reconnect:
		c.resetAttempts()
		return true
	}
}

// detect runs one resolver pass. A panicking resolver is treated exactly
// like a "not found" result: it must not crash the host or abort the retry
// sequence.
func (c *Controller) detect(ctx context.Context) (conn *discover.ResolvedConnection) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("resolver panicked", zap.Any("panic", r))
			conn = nil
		}
	}()
	return c.resolver.Detect(ctx)
}

func (c *Controller) currentAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Controller) bumpAttempt() {
	c.mu.Lock()
	c.attempt++
	c.mu.Unlock()
}

func (c *Controller) resetAttempts() {
	c.mu.Lock()
	c.attempt = 0
	c.phase = PhaseFast
	c.mu.Unlock()
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}
