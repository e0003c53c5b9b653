// Package channel owns a client's push connection to a table: connect,
// heartbeat, capped-backoff reconnect and teardown.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

const (
	DefaultBaseDelay         = 3 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultMaxAttempts       = 3
	DefaultConnectTimeout    = 5 * time.Second
	DefaultHeartbeatInterval = 25 * time.Second
)

var errHeartbeat = errors.New("heartbeat failed")

// Config tunes a Manager. Zero values fall back to the defaults above.
type Config struct {
	URL               string
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return c
}

// Backoff returns the delay before reconnect attempt n (zero based).
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Params wires a Manager's collaborators.
type Params struct {
	Config    Config
	Dialer    Dialer
	Scheduler Scheduler
	Logger    *logger.Logger
	// OnMessage runs on the connection's read goroutine, in arrival order.
	OnMessage func(types.Message)
}

// Manager is one client's channel. Construct one per client; it is not a
// process-wide singleton.
type Manager struct {
	cfg       Config
	dialer    Dialer
	sched     Scheduler
	logg      *logger.Logger
	onMessage func(types.Message)

	mu        sync.Mutex
	state     State
	attempts  int
	gen       uint64
	conn      Conn
	reconnect Timer
	heartbeat Timer
	listeners []func(State)

	writeMu sync.Mutex
}

func NewManager(p Params) (*Manager, error) {
	if p.Dialer == nil {
		return nil, errors.New("channel dialer required")
	}
	if p.Config.URL == "" {
		return nil, errors.New("channel url required")
	}
	sched := p.Scheduler
	if sched == nil {
		sched = WallClock()
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "channel", Output: io.Discard})
	}
	return &Manager{
		cfg:       p.Config.withDefaults(),
		dialer:    p.Dialer,
		sched:     sched,
		logg:      logg,
		onMessage: p.OnMessage,
		state:     StateDisconnected,
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the consecutive failed reconnect count.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// OnStateChange registers fn for every transition. Listeners run outside the
// manager's lock and may call Send.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect opens the channel unless one is already open or opening. Calling it
// from the error state starts a fresh retry budget.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateError {
		m.attempts = 0
	}
	m.stopReconnectLocked()
	gen := m.beginLocked()
	changes := m.setStateLocked(ctx, StateConnecting)
	m.mu.Unlock()

	m.notify(changes)
	return m.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect and closes the channel without
// retrying.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.gen++
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	changes := m.setStateLocked(context.Background(), StateDisconnected)
	m.mu.Unlock()

	m.notify(changes)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send delivers msg while connected. It never panics on a closed channel; a
// false return means the signal was dropped.
func (m *Manager) Send(msg types.Message) bool {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return false
	}
	conn := m.conn
	gen := m.gen
	m.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	m.writeMu.Lock()
	err := conn.WriteMessage(msg)
	m.writeMu.Unlock()
	if err != nil {
		ctx := m.logg.WithField(context.Background(), "message_type", msg.Type.String())
		m.logg.Warn(ctx, fmt.Sprintf("channel send failed: %v", err))
		m.handleDrop(gen, err)
		return false
	}
	return true
}

func (m *Manager) beginLocked() uint64 {
	m.gen++
	return m.gen
}

func (m *Manager) dial(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.cfg.URL)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		changes := m.failLocked(err)
		m.mu.Unlock()
		m.notify(changes)
		return fmt.Errorf("connect channel: %w", err)
	}

	m.conn = conn
	m.attempts = 0
	changes := m.setStateLocked(ctx, StateConnected)
	m.scheduleHeartbeatLocked(gen)
	m.mu.Unlock()

	m.notify(changes)
	go m.readLoop(gen, conn)
	return nil
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrMalformedMessage) {
				m.logg.Warn(context.Background(), err.Error())
				continue
			}
			m.handleDrop(gen, err)
			return
		}
		if m.onMessage != nil {
			m.onMessage(msg)
		}
	}
}

// handleDrop reacts to a failure on the connection opened in generation gen.
// Failures from superseded connections are ignored.
func (m *Manager) handleDrop(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	changes := m.failLocked(cause)
	m.mu.Unlock()
	m.notify(changes)
}

// failLocked tears down the current connection and either schedules the next
// attempt or gives up.
func (m *Manager) failLocked(cause error) []State {
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	ctx := m.logg.WithField(context.Background(), "attempt", m.attempts)
	changes := m.setStateLocked(ctx, StateDisconnected)

	if m.attempts >= m.cfg.MaxAttempts {
		m.logg.Error(ctx, "channel reconnect attempts exhausted", cause)
		return append(changes, m.setStateLocked(ctx, StateError)...)
	}

	delay := m.cfg.Backoff(m.attempts)
	m.attempts++
	m.stopReconnectLocked()
	gen := m.gen
	m.reconnect = m.sched.AfterFunc(delay, func() { m.retry(gen) })
	m.logg.Warn(m.logg.WithField(ctx, "delay_ms", delay.Milliseconds()), fmt.Sprintf("channel lost, reconnecting: %v", cause))
	return changes
}

func (m *Manager) retry(scheduledGen uint64) {
	m.mu.Lock()
	if scheduledGen != m.gen || m.state != StateDisconnected || m.reconnect == nil {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	gen := m.beginLocked()
	changes := m.setStateLocked(context.Background(), StateConnecting)
	m.mu.Unlock()

	m.notify(changes)
	_ = m.dial(context.Background(), gen)
}

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	m.stopHeartbeatLocked()
	m.heartbeat = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.beat(gen) })
}

func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.mu.Unlock()

	m.writeMu.Lock()
	err := conn.Ping()
	m.writeMu.Unlock()
	if err != nil {
		m.handleDrop(gen, errors.Join(errHeartbeat, err))
		return
	}

	m.mu.Lock()
	if gen == m.gen && m.state == StateConnected {
		m.scheduleHeartbeatLocked(gen)
	}
	m.mu.Unlock()
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) setStateLocked(ctx context.Context, next State) []State {
	if m.state == next {
		return nil
	}
	prev := m.state
	m.state = next
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"from": prev.String(),
		"to":   next.String(),
	}), "channel state changed")
	return []State{next}
}

func (m *Manager) notify(changes []State) {
	if len(changes) == 0 {
		return
	}
	m.mu.Lock()
	listeners := make([]func(State), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, state := range changes {
		for _, fn := range listeners {
			fn(state)
		}
	}
}
