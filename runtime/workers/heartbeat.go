package workers

import (
	"context"
	"log/slog"
	"time"

	"capital-bot/contract"
	"capital-bot/observability"
)

// Heartbeat probes the transport every interval while connected. A probe
// success refreshes the liveness timestamp; a probe failure is treated as
// a disconnection and handed to the lifecycle state machine.
type Heartbeat struct {
	log       *slog.Logger
	transport contract.Transport
	lifecycle *Lifecycle
	stats     *observability.StatsManager
	interval  time.Duration
}

func NewHeartbeat(log *slog.Logger, transport contract.Transport, lifecycle *Lifecycle, stats *observability.StatsManager, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Heartbeat{log: log, transport: transport, lifecycle: lifecycle, stats: stats, interval: interval}
}

func (w *Heartbeat) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.lifecycle.Connected() {
				continue
			}
			if err := w.transport.Ping(ctx); err != nil {
				w.log.Error("Heartbeat probe failed", "err", err)
				w.lifecycle.ReportFailure("heartbeat_failed")
				continue
			}
			w.lifecycle.MarkHeartbeat()
			snapshot := w.stats.Snapshot()
			w.log.Debug("Heartbeat",
				"total", snapshot.TotalMessages,
				"processed", snapshot.ProcessedMessages,
				"failed", snapshot.FailedMessages)
		}
	}
}
