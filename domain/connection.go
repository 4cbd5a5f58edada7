package domain

import "time"

type ConnState string

const (
	StateIdle           ConnState = "idle"
	StateInitializing   ConnState = "initializing"
	StateAuthenticating ConnState = "authenticating"
	StateConnecting     ConnState = "connecting"
	StateReady          ConnState = "ready"
	StateError          ConnState = "error"
	StateStopping       ConnState = "stopping"
)

// ConnectionStatus is a point-in-time snapshot of the lifecycle state,
// safe to hand out across goroutines.
type ConnectionStatus struct {
	State             ConnState
	Connected         bool
	ReconnectAttempts int
	EnteredAt         time.Time
	LastHeartbeat     time.Time
}
