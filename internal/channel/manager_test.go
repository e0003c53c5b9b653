package channel

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/splitpay-backend/internal/dispatcher"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

type manualTimer struct {
	sched   *manualScheduler
	at      time.Duration
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler advances virtual time only when told to.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{sched: s, at: s.now + d, delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.fn()
	}
}

func (s *manualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

type fakeConn struct {
	inbox     chan types.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []types.Message
	pingErr error
	pings   int
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan types.Message, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (types.Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return types.Message{}, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(msg types.Message) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Drop simulates the remote side going away.
func (c *fakeConn) Drop() { _ = c.Close() }

func (c *fakeConn) Sent() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.sent...)
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
}

func (d *fakeDialer) push(results ...dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	next := d.results[0]
	d.results = d.results[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestManager(t *testing.T, cfg Config, onMessage func(types.Message)) (*Manager, *fakeDialer, *manualScheduler) {
	t.Helper()
	dialer := &fakeDialer{}
	sched := &manualScheduler{}
	if cfg.URL == "" {
		cfg.URL = "ws://table.test/ws/tables/T1"
	}
	m, err := NewManager(Params{Config: cfg, Dialer: dialer, Scheduler: sched, OnMessage: onMessage})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Disconnect() })
	return m, dialer, sched
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := Config{BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second}
	want := []time.Duration{3, 6, 12, 24, 30, 30}
	for attempt, seconds := range want {
		assert.Equal(t, seconds*time.Second, cfg.Backoff(attempt), "attempt %d", attempt)
	}
}

func TestConnectIsReentrant(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{}, nil)
	dialer.push(dialResult{conn: newFakeConn()})

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, dialer.Dials())
}

func TestSendOnlyWhileConnected(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{}, nil)
	conn := newFakeConn()
	dialer.push(dialResult{conn: conn})

	assert.False(t, m.JoinTable("T1", enums.RoleCustomer))

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.JoinTable("T1", enums.RoleCustomer))
	assert.True(t, m.UpdateOrderStatus("T1", "ord-1", "ready"))

	sent := conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, enums.MessageTableUpdate, sent[0].Type)
	assert.JSONEq(t, `{"action":"join","role":"customer"}`, string(sent[0].Data))
	assert.JSONEq(t, `{"orderId":"ord-1","status":"ready"}`, string(sent[1].Data))
	assert.False(t, sent[0].Timestamp.IsZero())

	require.NoError(t, m.Disconnect())
	assert.False(t, m.LeaveTable("T1"))
}

func TestReconnectBackoffThenError(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{MaxAttempts: 3}, nil)

	require.Error(t, m.Connect(context.Background()))
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, []time.Duration{3 * time.Second}, sched.Pending())

	sched.Advance(3 * time.Second)
	assert.Equal(t, []time.Duration{6 * time.Second}, sched.Pending())

	sched.Advance(6 * time.Second)
	assert.Equal(t, []time.Duration{12 * time.Second}, sched.Pending())

	sched.Advance(12 * time.Second)
	assert.Equal(t, StateError, m.State())
	assert.Empty(t, sched.Pending())
	assert.Equal(t, 4, dialer.Dials())

	sched.Advance(time.Hour)
	assert.Equal(t, 4, dialer.Dials())

	dialer.push(dialResult{conn: newFakeConn()})
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 0, m.Attempts())
}

func TestOnlyOneReconnectTimerPending(t *testing.T) {
	m, _, sched := newTestManager(t, Config{MaxAttempts: 5}, nil)

	require.Error(t, m.Connect(context.Background()))
	require.Error(t, m.Connect(context.Background()))
	require.Error(t, m.Connect(context.Background()))

	assert.Len(t, sched.Pending(), 1)
}

func TestSuccessfulConnectResetsAttempts(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{MaxAttempts: 5}, nil)
	dialer.push(dialResult{err: errors.New("refused")}, dialResult{err: errors.New("refused")})
	conn := newFakeConn()
	dialer.push(dialResult{conn: conn})

	require.Error(t, m.Connect(context.Background()))
	sched.Advance(3 * time.Second)
	assert.Equal(t, 2, m.Attempts())

	sched.Advance(6 * time.Second)
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 0, m.Attempts())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{}, nil)

	require.Error(t, m.Connect(context.Background()))
	require.Len(t, sched.Pending(), 1)

	require.NoError(t, m.Disconnect())
	assert.Empty(t, sched.Pending())

	sched.Advance(time.Minute)
	assert.Equal(t, 1, dialer.Dials())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDroppedConnectionSchedulesReconnect(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{}, nil)
	first := newFakeConn()
	second := newFakeConn()
	dialer.push(dialResult{conn: first}, dialResult{conn: second})

	var mu sync.Mutex
	var states []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	require.NoError(t, m.Connect(context.Background()))
	first.Drop()
	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, time.Second, time.Millisecond)
	assert.Contains(t, sched.Pending(), 3*time.Second)

	sched.Advance(3 * time.Second)
	assert.Equal(t, StateConnected, m.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateConnected}, states)
}

func TestHeartbeatFailureTriggersReconnect(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{HeartbeatInterval: 10 * time.Second}, nil)
	conn := newFakeConn()
	dialer.push(dialResult{conn: conn})
	require.NoError(t, m.Connect(context.Background()))

	sched.Advance(10 * time.Second)
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, conn.pings)

	conn.mu.Lock()
	conn.pingErr = errors.New("broken pipe")
	conn.mu.Unlock()

	sched.Advance(10 * time.Second)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 1, m.Attempts())
}

func TestCallerReannouncesAfterReconnect(t *testing.T) {
	m, dialer, sched := newTestManager(t, Config{}, nil)
	first := newFakeConn()
	second := newFakeConn()
	dialer.push(dialResult{conn: first}, dialResult{conn: second})

	m.OnStateChange(func(s State) {
		if s == StateConnected {
			m.JoinTable("T1", enums.RoleWaiter)
		}
	})

	require.NoError(t, m.Connect(context.Background()))
	first.Drop()
	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, time.Second, time.Millisecond)
	sched.Advance(3 * time.Second)

	require.Len(t, first.Sent(), 1)
	require.Len(t, second.Sent(), 1)
	assert.Equal(t, enums.MessageTableUpdate, second.Sent()[0].Type)
}

func TestReconnectDoesNotReplayHistory(t *testing.T) {
	d := dispatcher.New()
	var mu sync.Mutex
	var joined []string
	d.Subscribe(enums.MessageParticipantJoined, func(msg types.Message) {
		var body struct {
			Name string `json:"name"`
		}
		_ = msg.DecodeData(&body)
		mu.Lock()
		defer mu.Unlock()
		joined = append(joined, body.Name)
	})

	m, dialer, sched := newTestManager(t, Config{}, func(msg types.Message) { d.Publish(msg.Type, msg) })
	first := newFakeConn()
	second := newFakeConn()
	dialer.push(dialResult{conn: first}, dialResult{conn: second})

	require.NoError(t, m.Connect(context.Background()))
	ana, err := types.NewMessage(enums.MessageParticipantJoined, "T1", map[string]string{"name": "Ana"})
	require.NoError(t, err)
	first.inbox <- ana
	require.Eventually(t, func() bool { return len(d.History()) == 1 }, time.Second, time.Millisecond)

	first.Drop()
	require.Eventually(t, func() bool { return m.State() == StateDisconnected }, time.Second, time.Millisecond)
	sched.Advance(3 * time.Second)
	require.Equal(t, StateConnected, m.State())

	mu.Lock()
	assert.Equal(t, []string{"Ana"}, joined)
	mu.Unlock()
	assert.Len(t, d.History(), 1)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Params{Config: Config{URL: "ws://x"}})
	require.Error(t, err)

	_, err = NewManager(Params{Dialer: &fakeDialer{}})
	require.Error(t, err)
}
