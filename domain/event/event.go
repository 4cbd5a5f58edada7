package event

import (
	"time"

	"capital-bot/domain"
)

type Type string

const (
	SystemType    Type = "SYSTEM"
	OperationType Type = "OPERATION"
	ErrorType     Type = "ERROR"
)

// DomainEvent is consumed by sinks (audit trail, operation log). Events are
// fire-and-forget: sinks must never influence command handling.
type DomainEvent interface {
	EventType() Type
}

// OperationApplied records a ledger-affecting or ledger-reading command.
type OperationApplied struct {
	GroupID    string
	Action     string
	User       *domain.UserInfo
	Before     float64
	After      float64
	Expression string
	Comment    string
	At         time.Time
}

func (OperationApplied) EventType() Type { return OperationType }

// UnauthorizedAccess carries a truncated body only, to bound log size.
type UnauthorizedAccess struct {
	GroupID string
	User    domain.UserInfo
	Body    string
	At      time.Time
}

func (UnauthorizedAccess) EventType() Type { return ErrorType }

type SystemEvent struct {
	Event   string
	Details map[string]any
	At      time.Time
}

func (SystemEvent) EventType() Type { return SystemType }

type DeliveryFailed struct {
	TargetID string
	Attempts int
	Reason   string
	At       time.Time
}

func (DeliveryFailed) EventType() Type { return ErrorType }

type HandlerFailure struct {
	GroupID string
	Context string
	Err     string
	At      time.Time
}

func (HandlerFailure) EventType() Type { return ErrorType }
