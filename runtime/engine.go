// Package runtime wires the transport to the command dispatcher and the
// outbound queue. It orchestrates the system without containing business
// logic or ledger rules.
package runtime

import (
	"context"
	"log/slog"

	"capital-bot/contract"
	"capital-bot/domain"
	"capital-bot/observability"
	"capital-bot/runtime/workers"
	"capital-bot/services"
)

// Engine consumes inbound messages and routes them through the dispatcher
// while the connection is ready. Replies leave exclusively through the
// outbound queue; in every other state inbound messages are dropped
// silently.
type Engine struct {
	log       *slog.Logger
	transport contract.Transport
	lifecycle *workers.Lifecycle
	outbound  *workers.Outbound
	commands  *services.CommandService
	stats     *observability.StatsManager
}

func NewEngine(
	log *slog.Logger,
	transport contract.Transport,
	lifecycle *workers.Lifecycle,
	outbound *workers.Outbound,
	commands *services.CommandService,
	stats *observability.StatsManager,
) *Engine {
	return &Engine{
		log:       log,
		transport: transport,
		lifecycle: lifecycle,
		outbound:  outbound,
		commands:  commands,
		stats:     stats,
	}
}

func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, open := <-e.transport.Messages():
			if !open {
				return nil
			}
			e.handle(ctx, msg)
		}
	}
}

func (e *Engine) handle(ctx context.Context, msg domain.InboundMessage) {
	e.stats.IncTotal()

	if !e.lifecycle.Connected() {
		e.log.Debug("Not ready, dropping inbound message", "chat", msg.ChatID)
		return
	}

	reply, ok := e.commands.Handle(ctx, msg)
	if !ok {
		return
	}
	e.outbound.Enqueue(msg.ChatID, reply, domain.SendOptions{})
}
