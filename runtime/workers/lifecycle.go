package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"capital-bot/contract"
	"capital-bot/domain"
	"capital-bot/domain/event"
)

// LifecycleConfig mirrors the reconnection policy of the original
// deployment: 60s connect timeout, 5s linear backoff, 5 attempts.
type LifecycleConfig struct {
	ConnectTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 60 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	return c
}

// Lifecycle is the connection state machine. It owns the transport session:
// it starts it, consumes its connectivity events, runs the connect-timeout
// timer and schedules reconnection with linear backoff. Commands are only
// dispatched and replies only delivered while the state is ready.
type Lifecycle struct {
	log       *slog.Logger
	transport contract.Transport
	events    chan<- event.DomainEvent
	config    LifecycleConfig

	mu            sync.Mutex
	state         domain.ConnState
	enteredAt     time.Time
	connected     bool
	attempts      int
	lastHeartbeat time.Time
	connectTimer  *time.Timer
	exhausted     bool

	internal chan domain.TransportEvent
	retry    chan struct{}
}

func NewLifecycle(log *slog.Logger, transport contract.Transport, events chan<- event.DomainEvent, config LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		log:       log,
		transport: transport,
		events:    events,
		config:    config.withDefaults(),
		state:     domain.StateIdle,
		enteredAt: time.Now(),
		internal:  make(chan domain.TransportEvent, 8),
		retry:     make(chan struct{}, 1),
	}
}

// Run drives the state machine on a single goroutine: transport events,
// heartbeat failures and reconnect timers all funnel through here, so
// transitions stay serialized.
func (l *Lifecycle) Run(ctx context.Context) error {
	l.setState(domain.StateInitializing)
	l.publishSystem("BOT_STARTUP")

	l.setState(domain.StateConnecting)
	if err := l.transport.Start(ctx); err != nil {
		l.log.Error("Transport failed to start", "err", err)
		l.handleDisconnect(err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case ev := <-l.transport.Events():
			l.handleEvent(ev)
		case ev := <-l.internal:
			l.handleEvent(ev)
		case <-l.retry:
			l.attemptReconnect(ctx)
		}
	}
}

func (l *Lifecycle) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected && l.state == domain.StateReady
}

func (l *Lifecycle) State() domain.ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) Status() domain.ConnectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.ConnectionStatus{
		State:             l.state,
		Connected:         l.connected,
		ReconnectAttempts: l.attempts,
		EnteredAt:         l.enteredAt,
		LastHeartbeat:     l.lastHeartbeat,
	}
}

// MarkHeartbeat refreshes the liveness timestamp.
func (l *Lifecycle) MarkHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastHeartbeat = time.Now()
}

// ReportFailure feeds an out-of-band failure (heartbeat probe) into the
// state machine as a disconnection.
func (l *Lifecycle) ReportFailure(reason string) {
	select {
	case l.internal <- domain.TransportEvent{Kind: domain.EventDisconnected, Reason: reason}:
	default:
	}
}

func (l *Lifecycle) handleEvent(ev domain.TransportEvent) {
	switch ev.Kind {
	case domain.EventQRNeeded:
		l.log.Info("Transport requests authentication")
		l.setState(domain.StateAuthenticating)

	case domain.EventAuthenticated:
		l.log.Info("Transport authenticated")
		l.publishSystem("AUTHENTICATED")
		// If ready does not follow in time, force a reconnect cycle.
		l.startConnectTimer()

	case domain.EventReady:
		l.stopConnectTimer()
		l.mu.Lock()
		l.state = domain.StateReady
		l.enteredAt = time.Now()
		l.connected = true
		l.attempts = 0
		l.exhausted = false
		l.lastHeartbeat = time.Now()
		l.mu.Unlock()
		l.log.Info("Transport ready, accepting commands")
		l.publishSystem("CLIENT_READY")

	case domain.EventAuthFailure:
		l.log.Error("Transport authentication failed", "reason", ev.Reason)
		l.setState(domain.StateError)
		l.publishSystem("AUTH_FAILURE")

	case domain.EventDisconnected:
		l.log.Warn("Transport disconnected", "reason", ev.Reason)
		l.handleDisconnect(ev.Reason)
	}
}

func (l *Lifecycle) handleDisconnect(reason string) {
	l.stopConnectTimer()

	l.mu.Lock()
	l.connected = false
	l.state = domain.StateError
	l.enteredAt = time.Now()
	if l.exhausted {
		l.mu.Unlock()
		return
	}
	if l.attempts >= l.config.MaxReconnectAttempts {
		l.exhausted = true
		l.mu.Unlock()
		// No further automatic recovery; the process stays alive.
		l.log.Error("Reconnect attempts exhausted, giving up",
			"attempts", l.config.MaxReconnectAttempts, "reason", reason)
		l.publishSystem("RECONNECT_EXHAUSTED")
		return
	}
	l.attempts++
	attempt := l.attempts
	l.mu.Unlock()

	delay := l.config.ReconnectBaseDelay * time.Duration(attempt)
	l.log.Info("Scheduling reconnect", "attempt", attempt, "max", l.config.MaxReconnectAttempts, "delay", delay)
	l.publishSystem("DISCONNECTED")
	time.AfterFunc(delay, func() {
		select {
		case l.retry <- struct{}{}:
		default:
		}
	})
}

func (l *Lifecycle) attemptReconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	l.transport.Stop()
	l.setState(domain.StateConnecting)
	if err := l.transport.Start(ctx); err != nil {
		l.log.Error("Reconnect failed", "err", err)
		l.handleDisconnect(err.Error())
	}
}

func (l *Lifecycle) startConnectTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connectTimer != nil {
		l.connectTimer.Stop()
	}
	l.connectTimer = time.AfterFunc(l.config.ConnectTimeout, func() {
		if !l.Connected() {
			l.log.Warn("Connection timed out before ready")
			l.ReportFailure("connect_timeout")
		}
	})
}

func (l *Lifecycle) stopConnectTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connectTimer != nil {
		l.connectTimer.Stop()
		l.connectTimer = nil
	}
}

func (l *Lifecycle) shutdown() {
	l.setState(domain.StateStopping)
	l.stopConnectTimer()
	l.transport.Stop()
	l.mu.Lock()
	l.connected = false
	l.state = domain.StateIdle
	l.enteredAt = time.Now()
	l.mu.Unlock()
	l.publishSystem("BOT_STOPPED")
}

func (l *Lifecycle) setState(state domain.ConnState) {
	l.mu.Lock()
	l.state = state
	l.enteredAt = time.Now()
	l.mu.Unlock()
}

func (l *Lifecycle) publishSystem(name string) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- event.SystemEvent{Event: name, At: time.Now().UTC()}:
	default:
	}
}
