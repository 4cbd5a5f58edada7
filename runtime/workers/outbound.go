package workers

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"capital-bot/contract"
	"capital-bot/domain"
	"capital-bot/domain/event"
	"capital-bot/observability"
)

const (
	dedupPrefixLength = 100
	wakeTickInterval  = 500 * time.Millisecond
)

var dedupWhitespace = regexp.MustCompile(`\s+`)

type queuedMessage struct {
	targetID   string
	body       string
	opts       domain.SendOptions
	dedupKey   string
	enqueuedAt time.Time
	attempts   int
}

// OutboundConfig carries the queue tuning knobs; zero values are replaced
// by the defaults observed in production: capacity 100, TTL 30s, 100ms
// between sends, 3 retries with 1s linear backoff.
type OutboundConfig struct {
	Capacity     int
	TTL          time.Duration
	SendDelay    time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c OutboundConfig) withDefaults() OutboundConfig {
	if c.Capacity <= 0 {
		c.Capacity = 100
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.SendDelay <= 0 {
		c.SendDelay = 100 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// ConnectionGate tells the queue whether delivery may proceed.
type ConnectionGate interface {
	Connected() bool
}

// Outbound is the single-consumer, many-producer queue through which every
// reply leaves the process. It deduplicates in-flight messages, evicts the
// oldest entry when full, drops stale entries, and retries failed sends
// with linear backoff.
type Outbound struct {
	log       *slog.Logger
	transport contract.Transport
	gate      ConnectionGate
	stats     *observability.StatsManager
	events    chan<- event.DomainEvent
	config    OutboundConfig

	mu       sync.Mutex
	queue    []*queuedMessage
	inflight map[string]struct{}
	wake     chan struct{}
	now      func() time.Time
}

func NewOutbound(
	log *slog.Logger,
	transport contract.Transport,
	gate ConnectionGate,
	stats *observability.StatsManager,
	events chan<- event.DomainEvent,
	config OutboundConfig,
) *Outbound {
	return &Outbound{
		log:       log,
		transport: transport,
		gate:      gate,
		stats:     stats,
		events:    events,
		config:    config.withDefaults(),
		inflight:  map[string]struct{}{},
		wake:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Enqueue queues one message for delivery. Duplicates of an in-flight
// message are dropped silently; when the queue is full the oldest queued
// entry is evicted first.
func (o *Outbound) Enqueue(targetID, body string, opts domain.SendOptions) {
	key := DedupKey(targetID, body)

	o.mu.Lock()
	if _, sending := o.inflight[key]; sending {
		o.mu.Unlock()
		return
	}
	if len(o.queue) >= o.config.Capacity {
		o.log.Warn("Outbound queue full, dropping oldest message", "target", o.queue[0].targetID)
		o.queue = o.queue[1:]
	}
	o.queue = append(o.queue, &queuedMessage{
		targetID:   targetID,
		body:       body,
		opts:       opts,
		dedupKey:   key,
		enqueuedAt: o.now(),
	})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// QueueLength reports queued entries, excluding the one being sent.
func (o *Outbound) QueueLength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Run drains the queue strictly in FIFO order, one message at a time,
// driven by enqueue wake-ups and a periodic scheduler tick.
func (o *Outbound) Run(ctx context.Context) error {
	ticker := time.NewTicker(wakeTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.wake:
		case <-ticker.C:
		}
		if err := o.drain(ctx); err != nil {
			return err
		}
	}
}

func (o *Outbound) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		item := o.popFront()
		if item == nil {
			return nil
		}

		// Stale-reply suppression: never deliver an old answer.
		if o.now().Sub(item.enqueuedAt) > o.config.TTL {
			o.log.Warn("Dropping expired outbound message", "target", item.targetID)
			continue
		}

		// Halt draining while disconnected; the next tick retries.
		if !o.gate.Connected() {
			o.pushFront(item)
			return nil
		}

		o.markInflight(item.dedupKey)
		err := o.transport.Send(ctx, item.targetID, item.body, item.opts)
		o.clearInflight(item.dedupKey)

		if err == nil {
			o.stats.IncProcessed()
			if !sleep(ctx, o.config.SendDelay) {
				return nil
			}
			continue
		}

		o.stats.IncFailed()
		if item.attempts < o.config.MaxRetries {
			item.attempts++
			o.log.Warn("Delivery failed, retrying",
				"target", item.targetID, "attempt", item.attempts, "max", o.config.MaxRetries, "err", err)
			o.pushFront(item)
			if !sleep(ctx, o.config.RetryBackoff*time.Duration(item.attempts)) {
				return nil
			}
			continue
		}

		o.log.Error("Delivery abandoned after max attempts", "target", item.targetID, "err", err)
		o.publish(event.DeliveryFailed{
			TargetID: item.targetID,
			Attempts: item.attempts + 1,
			Reason:   err.Error(),
			At:       o.now().UTC(),
		})
	}
}

func (o *Outbound) popFront() *queuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	item := o.queue[0]
	o.queue = o.queue[1:]
	return item
}

func (o *Outbound) pushFront(item *queuedMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append([]*queuedMessage{item}, o.queue...)
}

func (o *Outbound) markInflight(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight[key] = struct{}{}
}

func (o *Outbound) clearInflight(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, key)
}

func (o *Outbound) publish(e event.DomainEvent) {
	if o.events == nil {
		return
	}
	select {
	case o.events <- e:
	default:
	}
}

// DedupKey is target plus a whitespace-stripped, length-capped prefix of
// the body, guarding against re-sending an identical reply.
func DedupKey(targetID, body string) string {
	stripped := dedupWhitespace.ReplaceAllString(body, "")
	runes := []rune(stripped)
	if len(runes) > dedupPrefixLength {
		runes = runes[:dedupPrefixLength]
	}
	return targetID + "_" + string(runes)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
