package domain

import "time"

// InboundMessage is one message tuple delivered by the transport.
type InboundMessage struct {
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	DisplayName string    `json:"displayName"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	IsGroup     bool      `json:"isGroup"`
}

// SendOptions are passed through to the transport untouched.
type SendOptions struct {
	Retained bool
}

type TransportEventKind string

const (
	EventQRNeeded      TransportEventKind = "qr-needed"
	EventAuthenticated TransportEventKind = "authenticated"
	EventReady         TransportEventKind = "ready"
	EventDisconnected  TransportEventKind = "disconnected"
	EventAuthFailure   TransportEventKind = "auth-failure"
)

// TransportEvent is a connectivity event emitted by the transport session.
type TransportEvent struct {
	Kind   TransportEventKind
	Reason string
}
