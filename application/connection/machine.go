// Package connection tracks backend liveness and gates calls on it.
package connection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"graphscape/application/ports"
	pkgerrors "graphscape/pkg/errors"
)

// State is the connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Event names the input that caused a transition
type Event string

const (
	EventConnect        Event = "connect"
	EventDisconnect     Event = "disconnect"
	EventProbeSucceeded Event = "probe_succeeded"
	EventProbeFailed    Event = "probe_failed"
	EventCallFailed     Event = "call_failed"
)

// Transition describes one state change
type Transition struct {
	From  State
	To    State
	Event Event
	Err   error
	At    time.Time
}

// Listener observes transitions. Listeners may read the machine but must
// not drive transitions themselves.
type Listener func(Transition)

// Settings configures probing
type Settings struct {
	ProbeTimeout     time.Duration
	LivenessInterval time.Duration
	Reconnect        bool
}

// DefaultSettings returns the default probe settings
func DefaultSettings() Settings {
	return Settings{
		ProbeTimeout:     3 * time.Second,
		LivenessInterval: 15 * time.Second,
		Reconnect:        true,
	}
}

type listenerEntry struct {
	id int
	fn Listener
}

// Machine is the connection state machine. It is safe for concurrent use.
type Machine struct {
	mu         sync.Mutex
	notifyMu   sync.Mutex
	state      State
	lastErr    error
	generation uint64
	listeners  []listenerEntry
	nextID     int

	prober   ports.Prober
	settings Settings
	logger   *zap.Logger
}

// NewMachine creates a machine in the disconnected state
func NewMachine(prober ports.Prober, settings Settings, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = DefaultSettings().ProbeTimeout
	}
	return &Machine{
		state:    StateDisconnected,
		prober:   prober,
		settings: settings,
		logger:   logger,
	}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error that caused the current error state
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SetProbeSettings replaces the probe settings; used on config reload
func (m *Machine) SetProbeSettings(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = m.settings.ProbeTimeout
	}
	m.settings = settings
}

// OnTransition registers a listener and returns a function removing it
func (m *Machine) OnTransition(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.listeners {
			if e.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Connect moves to connecting and probes the backend. The probe result
// moves the machine to connected or error. Connecting while connected is a
// no-op. A probe overtaken by a later connect or disconnect is discarded
// and Connect returns a Cancelled error.
func (m *Machine) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.generation++
	gen := m.generation
	timeout := m.settings.ProbeTimeout
	m.commitAndUnlock(StateConnecting, EventConnect, nil)

	err := m.probe(ctx, timeout)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale probe result", zap.Uint64("generation", gen))
		return pkgerrors.NewCancelledError("connect")
	}
	if err != nil {
		m.commitAndUnlock(StateError, EventProbeFailed, err)
		return err
	}
	m.commitAndUnlock(StateConnected, EventProbeSucceeded, nil)
	return nil
}

// Disconnect moves to disconnected from any state and discards any probe
// in flight
func (m *Machine) Disconnect() {
	m.mu.Lock()
	m.generation++
	m.commitAndUnlock(StateDisconnected, EventDisconnect, nil)
}

// Guard rejects calls while not connected, without touching the network
func (m *Machine) Guard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return pkgerrors.NewNotConnectedError(string(m.state))
	}
	return nil
}

// ReportFailure records the outcome of a guarded call. Transport failures
// move a connected machine to error; other errors are ignored.
func (m *Machine) ReportFailure(err error) {
	if !pkgerrors.IsTransportFailure(err) {
		return
	}
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.commitAndUnlock(StateError, EventCallFailed, err)
}

// Watch re-probes a connected backend every interval until ctx is done.
// With Reconnect set, it also re-issues connect from the error state.
// A zero interval follows Settings.LivenessInterval, including changes
// made through SetProbeSettings.
func (m *Machine) Watch(ctx context.Context, interval time.Duration) {
	fixed := interval > 0
	if !fixed {
		interval = m.livenessInterval()
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
			if fixed {
				continue
			}
			if next := m.livenessInterval(); next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (m *Machine) livenessInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.LivenessInterval
}

func (m *Machine) tick(ctx context.Context) {
	m.mu.Lock()
	state, gen := m.state, m.generation
	timeout, reconnect := m.settings.ProbeTimeout, m.settings.Reconnect
	m.mu.Unlock()

	switch state {
	case StateConnected:
		err := m.probe(ctx, timeout)
		if err == nil || ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		if gen != m.generation || m.state != StateConnected {
			m.mu.Unlock()
			return
		}
		m.generation++
		m.commitAndUnlock(StateError, EventProbeFailed, err)
	case StateError:
		if reconnect {
			if err := m.Connect(ctx); err != nil {
				m.logger.Debug("Reconnect attempt failed", zap.Error(err))
			}
		}
	}
}

func (m *Machine) probe(ctx context.Context, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.prober.Check(probeCtx)
	if err == nil {
		return nil
	}
	if pkgerrors.IsTransportFailure(err) || pkgerrors.IsCancelled(err) {
		return err
	}
	return pkgerrors.NewTransportFailureError("health probe", err)
}

// commitAndUnlock applies a transition and releases m.mu. Listeners run
// after the release, in transition order.
func (m *Machine) commitAndUnlock(to State, ev Event, cause error) {
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.lastErr = cause
	t := Transition{From: from, To: to, Event: ev, Err: cause, At: time.Now()}
	listeners := make([]Listener, len(m.listeners))
	for i, e := range m.listeners {
		listeners[i] = e.fn
	}

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	fields := []zap.Field{
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("event", string(ev)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	m.logger.Info("Connection state changed", fields...)

	for _, l := range listeners {
		l(t)
	}
}
