package contract

import (
	"context"
	"reflect"

	"capital-bot/domain"
	"capital-bot/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Transport is the chat session boundary. The engine never talks to the
// wire directly: all sends go through the outbound queue, all connectivity
// changes arrive on Events.
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	Send(ctx context.Context, targetID, body string, opts domain.SendOptions) error
	Ping(ctx context.Context) error
	Events() <-chan domain.TransportEvent
	Messages() <-chan domain.InboundMessage
}
