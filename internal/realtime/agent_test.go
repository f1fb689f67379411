package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type fakeTimer struct {
	d  time.Duration
	fn func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.fn()
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) at(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	next  func(call int) (Stream, error)
}

func (d *fakeDialer) Dial(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	fn := d.next
	d.mu.Unlock()
	return fn(call)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeStream struct {
	ch   chan event.Event
	once sync.Once

	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan event.Event, 16)}
}

func (s *fakeStream) Events() <-chan event.Event { return s.ch }

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	cols  Collections
	err   error
}

func (f *fakeFetcher) FetchAll(ctx context.Context) (Collections, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.cols, f.err
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) handler() Handler {
	return func(ev event.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *eventRecorder) recorded() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func TestBackoffDelaySequence(t *testing.T) {
	a := NewAgent(nil, nil, logger.NewNop())

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for attempts, d := range want {
		assert.Equal(t, d, a.backoffDelay(attempts), "attempt %d", attempts)
	}

	// Capped after that.
	assert.Equal(t, 30*time.Second, a.backoffDelay(5))
	assert.Equal(t, 30*time.Second, a.backoffDelay(12))
}

func TestAgent_BackoffThenDegradeToPolling(t *testing.T) {
	clock := &fakeClock{}
	dialer := &fakeDialer{next: func(int) (Stream, error) {
		return nil, errors.New("connection refused")
	}}
	fetcher := &fakeFetcher{}

	degraded := make(chan string, 2)
	agent := NewAgent(dialer, fetcher, logger.NewNop(),
		WithClock(clock),
		WithDegradedNotice(func(reason string) { degraded <- reason }),
	)

	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) {})

	// Four failures schedule retries with exponentially growing delays; the
	// fifth failure drops the agent into polling.
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantDelays {
		require.Eventually(t, func() bool { return clock.count() == i+1 }, waitFor, tick,
			"retry %d should be scheduled", i+1)
		retry := clock.at(i)
		assert.Equal(t, want, retry.d, "retry %d delay", i+1)
		assert.Equal(t, StateReconnecting, agent.State())
		retry.fire()
	}

	require.Eventually(t, func() bool { return agent.State() == StatePolling }, waitFor, tick)
	assert.Equal(t, 5, dialer.dialCount())

	select {
	case reason := <-degraded:
		assert.Contains(t, reason, "exhausted")
	case <-time.After(waitFor):
		t.Fatal("degraded notice was never delivered")
	}

	// The only new timer is the poll tick; firing it fetches, it never dials.
	require.Eventually(t, func() bool { return clock.count() == 5 }, waitFor, tick)
	poll := clock.at(4)
	assert.Equal(t, 3*time.Second, poll.d)
	poll.fire()

	require.Eventually(t, func() bool { return fetcher.fetchCount() == 1 }, waitFor, tick)
	assert.Equal(t, 5, dialer.dialCount(), "polling must not dial")
}

func TestAgent_UnsubscribeLastTearsDown(t *testing.T) {
	clock := &fakeClock{}
	stream := newFakeStream()
	dialer := &fakeDialer{next: func(int) (Stream, error) { return stream, nil }}

	agent := NewAgent(dialer, &fakeFetcher{}, logger.NewNop(), WithClock(clock))

	unsubA := agent.Subscribe(event.TypeExpenseCreated, func(event.Event) {})
	unsubB := agent.Subscribe(event.TypeIncomeCreated, func(event.Event) {})

	require.Eventually(t, func() bool { return agent.State() == StateConnected }, waitFor, tick)

	unsubA()
	assert.False(t, stream.isClosed(), "a remaining subscriber must keep the stream open")

	unsubB()
	require.Eventually(t, func() bool { return stream.isClosed() }, waitFor, tick)
	assert.Equal(t, StateIdle, agent.State())

	// Idempotent: a second call is a no-op.
	unsubB()
	assert.Equal(t, StateIdle, agent.State())
	assert.Equal(t, 0, clock.count(), "teardown must not leave timers behind")
}

func TestAgent_DispatchOrderAndPanicIsolation(t *testing.T) {
	stream := newFakeStream()
	dialer := &fakeDialer{next: func(int) (Stream, error) { return stream, nil }}
	agent := NewAgent(dialer, &fakeFetcher{}, logger.NewNop(), WithClock(&fakeClock{}))

	var mu sync.Mutex
	var order []string
	note := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) { note("first") })
	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) {
		note("second")
		panic("handler blew up")
	})
	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) { note("third") })

	require.Eventually(t, func() bool { return agent.State() == StateConnected }, waitFor, tick)
	stream.ch <- event.Event{Type: event.TypeExpenseCreated, Data: json.RawMessage(`{}`)}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestAgent_DeliversExactPayloadOnce(t *testing.T) {
	stream := newFakeStream()
	dialer := &fakeDialer{next: func(int) (Stream, error) { return stream, nil }}
	agent := NewAgent(dialer, &fakeFetcher{}, logger.NewNop(), WithClock(&fakeClock{}))

	rec := &eventRecorder{}
	agent.Subscribe(event.TypeExpenseCreated, rec.handler())

	require.Eventually(t, func() bool { return agent.State() == StateConnected }, waitFor, tick)

	payload := `{"id":"e1","amount":50,"category":"Food","date":"2024-01-01"}`
	stream.ch <- event.Event{Type: event.TypeExpenseCreated, Data: json.RawMessage(payload)}

	require.Eventually(t, func() bool { return len(rec.recorded()) == 1 }, waitFor, tick)

	// Give a stray duplicate a chance to show up before asserting "once".
	time.Sleep(20 * time.Millisecond)
	events := rec.recorded()
	require.Len(t, events, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(events[0].Data.(json.RawMessage), &got))
	assert.Equal(t, "e1", got["id"])
	assert.Equal(t, 50.0, got["amount"])
	assert.Equal(t, "Food", got["category"])
	assert.Equal(t, "2024-01-01", got["date"])
}

func TestAgent_StreamUnsupportedFallsBackToPolling(t *testing.T) {
	clock := &fakeClock{}
	dialer := &fakeDialer{next: func(int) (Stream, error) { return nil, ErrStreamUnsupported }}
	fetcher := &fakeFetcher{cols: Collections{
		Incomes:  []store.Record{{ID: "i1", Amount: 1000, Category: "Salary", Date: "2024-01-01"}},
		Expenses: []store.Record{{ID: "e1", Amount: 50, Category: "Food", Date: "2024-01-01"}},
	}}

	agent := NewAgent(dialer, fetcher, logger.NewNop(), WithClock(clock))

	incomes := &eventRecorder{}
	expenses := &eventRecorder{}
	agent.Subscribe(event.TypeIncomeUpdated, incomes.handler())
	agent.Subscribe(event.TypeExpenseUpdated, expenses.handler())

	require.Eventually(t, func() bool { return agent.State() == StatePolling }, waitFor, tick)
	assert.Equal(t, 1, dialer.dialCount(), "unsupported transport must not be retried")

	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)
	clock.at(0).fire()

	// Polling synthesizes coarse *_UPDATED events carrying the whole
	// collection; it has no create/delete granularity.
	require.Eventually(t, func() bool {
		return len(incomes.recorded()) == 1 && len(expenses.recorded()) == 1
	}, waitFor, tick)

	cols, ok := expenses.recorded()[0].Data.([]store.Record)
	require.True(t, ok)
	require.Len(t, cols, 1)
	assert.Equal(t, "e1", cols[0].ID)

	// Pause stops the loop, resume restarts it.
	require.Eventually(t, func() bool { return clock.count() == 2 }, waitFor, tick)
	agent.PausePolling()
	clock.at(1).fire()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, fetcher.fetchCount(), "paused agent must not fetch")

	agent.ResumePolling()
	require.Eventually(t, func() bool { return clock.count() == 3 }, waitFor, tick)
	clock.at(2).fire()
	require.Eventually(t, func() bool { return fetcher.fetchCount() == 2 }, waitFor, tick)
}

func TestAgent_ReconnectsAfterStreamLossAndResetsBackoff(t *testing.T) {
	clock := &fakeClock{}
	var streams []*fakeStream
	var mu sync.Mutex
	dialer := &fakeDialer{next: func(int) (Stream, error) {
		s := newFakeStream()
		mu.Lock()
		streams = append(streams, s)
		mu.Unlock()
		return s, nil
	}}

	agent := NewAgent(dialer, &fakeFetcher{}, logger.NewNop(), WithClock(clock))
	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) {})

	require.Eventually(t, func() bool { return agent.State() == StateConnected }, waitFor, tick)

	// Server drops the stream: the retry is scheduled at the base delay
	// because a successful connect reset the attempt counter.
	mu.Lock()
	first := streams[0]
	mu.Unlock()
	first.Close()

	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)
	retry := clock.at(0)
	assert.Equal(t, time.Second, retry.d)
	assert.Equal(t, StateReconnecting, agent.State())

	retry.fire()
	require.Eventually(t, func() bool { return agent.State() == StateConnected }, waitFor, tick)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestAgent_DisconnectGuardsStaleTimers(t *testing.T) {
	clock := &fakeClock{}
	dialer := &fakeDialer{next: func(int) (Stream, error) {
		return nil, errors.New("connection refused")
	}}

	agent := NewAgent(dialer, &fakeFetcher{}, logger.NewNop(), WithClock(clock))
	agent.Subscribe(event.TypeExpenseCreated, func(event.Event) {})

	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)

	agent.Disconnect()
	assert.Equal(t, StateClosed, agent.State())

	// A timer firing after teardown must be a no-op.
	clock.at(0).fire()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, StateClosed, agent.State())

	// Explicit reconnect works again.
	agent.Connect()
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 }, waitFor, tick)
}
