package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openusb/usbhubd/internal/hub"
)

// Logger is the minimal logging interface the session needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Manager serialises all access to the one hub connection.
//
// Thread Safety: all methods are safe for concurrent use. Device
// commands are serialised by an internal mutex held for the full
// round-trip, so overlapping callers queue rather than interleave.
type Manager struct {
	mu   sync.Mutex // guards conn for the duration of each command
	conn hub.Conn

	logger Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	operations atomic.Uint64
	errors     atomic.Uint64
	startedAt  time.Time

	onChangeMu sync.RWMutex
	onChange   func(Event)
}

// New wraps an established device connection in a session manager.
func New(conn hub.Conn, logger Logger) *Manager {
	return &Manager{
		conn:      conn,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// SetOnChange registers the callback invoked after each acknowledged
// state change. The callback runs outside the device lock, on the
// goroutine that performed the change. Pass nil to unregister.
func (m *Manager) SetOnChange(fn func(Event)) {
	m.onChangeMu.Lock()
	m.onChange = fn
	m.onChangeMu.Unlock()
}

// Info queries the device identity.
func (m *Manager) Info(ctx context.Context) (hub.DeviceInfo, error) {
	if m.closed.Load() {
		return hub.DeviceInfo{}, ErrSessionClosed
	}

	m.mu.Lock()
	info, err := m.conn.Info(ctx)
	m.mu.Unlock()

	m.count(err)
	return info, err
}

// PowerStatus queries the power state of the given channels.
func (m *Manager) PowerStatus(ctx context.Context, channels []hub.Channel) (Status, error) {
	return m.status(ctx, channels, m.conn.PowerStatus)
}

// DatalineStatus queries the data line state of the given channels.
func (m *Manager) DatalineStatus(ctx context.Context, channels []hub.Channel) (Status, error) {
	return m.status(ctx, channels, m.conn.DatalineStatus)
}

// SetPower switches power for the given channels and reports whether
// the device acknowledged the change for all of them.
func (m *Manager) SetPower(ctx context.Context, channels []hub.Channel, state hub.State) (bool, error) {
	return m.set(ctx, "power", channels, state, m.conn.SetPower)
}

// SetDataline switches the data lines for the given channels.
func (m *Manager) SetDataline(ctx context.Context, channels []hub.Channel, state hub.State) (bool, error) {
	return m.set(ctx, "dataline", channels, state, m.conn.SetDataline)
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Port:       m.conn.Port(),
		Connected:  !m.closed.Load(),
		Operations: m.operations.Load(),
		Errors:     m.errors.Load(),
		StartedAt:  m.startedAt,
	}
}

// Close shuts the session down and releases the device connection.
// Idempotent: later calls return the first result. In-flight commands
// finish before the connection closes; new ones get ErrSessionClosed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)

		m.mu.Lock()
		m.closeErr = m.conn.Close()
		m.mu.Unlock()

		m.logger.Info("device session closed", "port", m.conn.Port())
	})
	return m.closeErr
}

type statusFunc func(context.Context, []hub.Channel) (map[hub.Channel]hub.State, error)

func (m *Manager) status(ctx context.Context, channels []hub.Channel, query statusFunc) (Status, error) {
	if m.closed.Load() {
		return Status{}, ErrSessionClosed
	}

	m.mu.Lock()
	states, err := query(ctx, channels)
	m.mu.Unlock()

	m.count(err)
	if err != nil {
		return Status{}, err
	}

	if len(channels) == 1 {
		return SingleStatus(channels[0], states[channels[0]]), nil
	}
	return MultiStatus(states), nil
}

type setFunc func(context.Context, []hub.Channel, hub.State) (bool, error)

func (m *Manager) set(ctx context.Context, function string, channels []hub.Channel, state hub.State, apply setFunc) (bool, error) {
	if m.closed.Load() {
		return false, ErrSessionClosed
	}

	m.mu.Lock()
	ok, err := apply(ctx, channels, state)
	m.mu.Unlock()

	m.count(err)
	if err != nil {
		m.logger.Error("set command failed", "function", function, "channels", channels, "error", err)
		return false, err
	}

	if ok {
		m.logger.Debug("channel state changed", "function", function, "channels", channels, "state", int(state))
		m.emit(Event{Function: function, Channels: channels, State: state, Time: time.Now()})
	} else {
		m.logger.Warn("device rejected set command", "function", function, "channels", channels)
	}

	return ok, nil
}

// emit invokes the change callback, if any, outside the device lock.
func (m *Manager) emit(ev Event) {
	m.onChangeMu.RLock()
	fn := m.onChange
	m.onChangeMu.RUnlock()

	if fn != nil {
		fn(ev)
	}
}

func (m *Manager) count(err error) {
	m.operations.Add(1)
	if err != nil {
		m.errors.Add(1)
	}
}
