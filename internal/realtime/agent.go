package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

const (
	defaultBaseBackoff  = time.Second
	defaultMaxBackoff   = 30 * time.Second
	defaultMaxAttempts  = 5
	defaultPollInterval = 3 * time.Second
)

// Handler receives one dispatched event. Handlers for the same type run
// synchronously in subscription order; a panic in one does not stop the rest.
type Handler func(ev event.Event)

type subscription struct {
	typ     event.Type
	fn      Handler
	removed bool
}

// Agent gives UI code a subscribe/unsubscribe API over the realtime channel
// without exposing transport details. One agent per process; construct it
// with its collaborators injected so tests can run isolated instances.
type Agent struct {
	mu sync.Mutex

	state    State
	attempts int
	// gen is bumped on every teardown; timers and dial goroutines check it
	// so nothing fires into a torn-down agent.
	gen int

	listeners map[event.Type][]*subscription

	stream     Stream
	dialCancel context.CancelFunc
	retryTimer Timer
	pollTimer  Timer
	pollPaused bool

	degradedNotified bool

	dialer  Dialer
	fetcher Fetcher
	clock   Clock
	logger  logger.Logger

	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxAttempts  int
	pollInterval time.Duration
	onDegraded   func(reason string)
}

// Option tweaks an Agent at construction time.
type Option func(*Agent)

// WithClock replaces the real timer source, mainly for tests.
func WithClock(c Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithMaxAttempts caps reconnect attempts before the agent degrades to
// polling.
func WithMaxAttempts(n int) Option {
	return func(a *Agent) { a.maxAttempts = n }
}

// WithPollInterval sets the degraded-mode refetch period.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) { a.pollInterval = d }
}

// WithBackoff sets the base and cap of the exponential reconnect delay.
func WithBackoff(base, max time.Duration) Option {
	return func(a *Agent) {
		a.baseBackoff = base
		a.maxBackoff = max
	}
}

// WithDegradedNotice installs a hook invoked once when the agent gives up on
// streaming and falls back to polling; hosts surface it as a user notice.
func WithDegradedNotice(fn func(reason string)) Option {
	return func(a *Agent) { a.onDegraded = fn }
}

func NewAgent(dialer Dialer, fetcher Fetcher, log logger.Logger, opts ...Option) *Agent {
	a := &Agent{
		state:        StateIdle,
		listeners:    make(map[event.Type][]*subscription),
		dialer:       dialer,
		fetcher:      fetcher,
		clock:        realClock{},
		logger:       log.WithField("component", "realtime-agent"),
		baseBackoff:  defaultBaseBackoff,
		maxBackoff:   defaultMaxBackoff,
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscribe registers fn for events of type t and returns its unsubscribe
// function. The first subscription on an idle agent opens the connection;
// removing the last subscription tears it down.
func (a *Agent) Subscribe(t event.Type, fn Handler) func() {
	a.mu.Lock()
	sub := &subscription{typ: t, fn: fn}
	a.listeners[t] = append(a.listeners[t], sub)
	if a.state == StateIdle {
		a.startConnectingLocked()
	}
	a.mu.Unlock()

	return func() { a.unsubscribe(sub) }
}

func (a *Agent) unsubscribe(sub *subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sub.removed {
		return
	}
	sub.removed = true

	subs := a.listeners[sub.typ]
	for i, s := range subs {
		if s == sub {
			a.listeners[sub.typ] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(a.listeners[sub.typ]) == 0 {
		delete(a.listeners, sub.typ)
	}

	if len(a.listeners) == 0 && a.state != StateClosed {
		a.logger.Debug("last subscriber gone, tearing down")
		a.teardownLocked(StateIdle)
	}
}

// Connect opens the realtime channel if it is idle or was explicitly
// disconnected.
func (a *Agent) Connect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateIdle || a.state == StateClosed {
		a.startConnectingLocked()
	}
}

// Disconnect tears the channel down and keeps it down until Connect is
// called again; subscriptions survive.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teardownLocked(StateClosed)
}

// PausePolling suspends degraded-mode refetching (e.g. a backgrounded tab)
// without losing subscriptions.
func (a *Agent) PausePolling() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pollPaused = true
	if a.pollTimer != nil {
		a.pollTimer.Stop()
		a.pollTimer = nil
	}
}

// ResumePolling restarts the degraded-mode refetch loop if the agent is in
// polling state.
func (a *Agent) ResumePolling() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pollPaused {
		return
	}
	a.pollPaused = false
	if a.state == StatePolling {
		a.schedulePollLocked()
	}
}

func (a *Agent) teardownLocked(next State) {
	a.gen++
	if a.dialCancel != nil {
		a.dialCancel()
		a.dialCancel = nil
	}
	if a.stream != nil {
		a.stream.Close()
		a.stream = nil
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
	if a.pollTimer != nil {
		a.pollTimer.Stop()
		a.pollTimer = nil
	}
	a.attempts = 0
	a.pollPaused = false
	a.state = next
}

func (a *Agent) startConnectingLocked() {
	a.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	a.dialCancel = cancel

	go a.run(a.gen, ctx)
}

func (a *Agent) run(gen int, ctx context.Context) {
	st, err := a.dialer.Dial(ctx)

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		if st != nil {
			st.Close()
		}
		return
	}

	if err != nil {
		if errors.Is(err, ErrStreamUnsupported) {
			a.enterPollingLocked("streaming transport unavailable")
			a.mu.Unlock()
			return
		}
		a.logger.Warnf("stream dial failed: %v", err)
		a.scheduleRetryLocked()
		a.mu.Unlock()
		return
	}

	a.state = StateConnected
	a.attempts = 0
	a.stream = st
	a.mu.Unlock()

	a.logger.Info("realtime stream connected")

	for ev := range st.Events() {
		a.dispatch(ev)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.stream = nil
	a.logger.Warn("realtime stream lost")
	a.scheduleRetryLocked()
}

// scheduleRetryLocked computes the next backoff delay and either schedules a
// reconnect or, once attempts are exhausted, degrades to polling.
func (a *Agent) scheduleRetryLocked() {
	delay := a.backoffDelay(a.attempts)
	a.attempts++

	if a.attempts >= a.maxAttempts {
		a.enterPollingLocked("reconnect attempts exhausted")
		return
	}

	a.state = StateReconnecting
	a.logger.Infof("reconnecting in %s (attempt %d)", delay, a.attempts)

	gen := a.gen
	a.retryTimer = a.clock.AfterFunc(delay, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if gen != a.gen || a.state != StateReconnecting {
			return
		}
		a.startConnectingLocked()
	})
}

func (a *Agent) backoffDelay(attempts int) time.Duration {
	delay := a.baseBackoff << uint(attempts)
	if delay > a.maxBackoff || delay <= 0 {
		delay = a.maxBackoff
	}
	return delay
}

func (a *Agent) enterPollingLocked(reason string) {
	a.state = StatePolling
	a.logger.Warnf("degrading to polling: %s", reason)

	if a.onDegraded != nil && !a.degradedNotified {
		a.degradedNotified = true
		// Outside the lock; the host may do anything in the hook.
		go a.onDegraded(reason)
	}

	a.schedulePollLocked()
}

func (a *Agent) schedulePollLocked() {
	if a.pollPaused {
		return
	}
	gen := a.gen
	a.pollTimer = a.clock.AfterFunc(a.pollInterval, func() {
		a.mu.Lock()
		if gen != a.gen || a.state != StatePolling || a.pollPaused {
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
		a.poll(gen)
	})
}

// poll refetches the full collections and synthesizes coarse *_UPDATED
// events. Degraded mode deliberately has no create/delete granularity: the
// payload is the whole current collection.
func (a *Agent) poll(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.pollInterval)
	cols, err := a.fetcher.FetchAll(ctx)
	cancel()

	if err != nil {
		a.logger.Warnf("poll fetch failed: %v", err)
	} else {
		a.dispatch(event.Event{Type: event.TypeIncomeUpdated, Data: cols.Incomes})
		a.dispatch(event.Event{Type: event.TypeExpenseUpdated, Data: cols.Expenses})
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.state != StatePolling {
		return
	}
	a.schedulePollLocked()
}

// dispatch delivers one event to its subscribers, in subscription order.
func (a *Agent) dispatch(ev event.Event) {
	a.mu.Lock()
	subs := append([]*subscription(nil), a.listeners[ev.Type]...)
	a.mu.Unlock()

	for _, sub := range subs {
		a.invoke(sub, ev)
	}
}

func (a *Agent) invoke(sub *subscription, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorf("event handler panicked on %s: %v", ev.Type, r)
		}
	}()
	sub.fn(ev)
}
