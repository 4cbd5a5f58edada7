package workers

import (
	"context"
	"log/slog"

	"capital-bot/contract"
	"capital-bot/domain/event"
)

// EventFanout broadcasts domain events to the registered sinks (audit
// trail, operation log).
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. A failing sink is logged and skipped;
// sinks never influence command handling.
type EventFanout struct {
	log    *slog.Logger
	events <-chan event.DomainEvent
	sinks  []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Error("Sink failed to consume event", "err", err)
		}
	}
}
