package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"capital-bot/domain"
	"capital-bot/observability"
)

func newOutbound(t *testing.T, transport *fakeTransport, gate *fakeGate, config OutboundConfig) *Outbound {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewOutbound(log, transport, gate, observability.NewStatsManager(), nil, config)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}

func TestOutbound_DeliversInFIFOOrder(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	gate := &fakeGate{}
	gate.connected.Store(true)
	outbound := newOutbound(t, transport, gate, OutboundConfig{SendDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	outbound.Enqueue("g", "first", domain.SendOptions{})
	outbound.Enqueue("g", "second", domain.SendOptions{})

	waitFor(t, 2*time.Second, func() bool { return len(transport.sentMessages()) == 2 })
	sent := transport.sentMessages()
	req.Equal("first", sent[0].body)
	req.Equal("second", sent[1].body)
}

func TestOutbound_DedupWhileInFlight(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	transport.holdSend = make(chan struct{})
	transport.sendBegun = make(chan struct{})
	begun := transport.sendBegun
	hold := transport.holdSend
	gate := &fakeGate{}
	gate.connected.Store(true)
	outbound := newOutbound(t, transport, gate, OutboundConfig{SendDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	outbound.Enqueue("g", "重复 消息", domain.SendOptions{})
	<-begun

	// Same target and normalized body prefix while the first is in flight.
	outbound.Enqueue("g", "重复消息", domain.SendOptions{})
	close(hold)

	waitFor(t, 2*time.Second, func() bool { return len(transport.sentMessages()) == 1 })
	time.Sleep(50 * time.Millisecond)
	req.Len(transport.sentMessages(), 1)
}

func TestOutbound_EvictsOldestWhenFull(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	gate := &fakeGate{} // disconnected: nothing drains yet
	outbound := newOutbound(t, transport, gate, OutboundConfig{Capacity: 3, SendDelay: time.Millisecond})

	outbound.Enqueue("g", "m1", domain.SendOptions{})
	outbound.Enqueue("g", "m2", domain.SendOptions{})
	outbound.Enqueue("g", "m3", domain.SendOptions{})
	outbound.Enqueue("g", "m4", domain.SendOptions{})
	req.Equal(3, outbound.QueueLength())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()
	gate.connected.Store(true)

	waitFor(t, 2*time.Second, func() bool { return len(transport.sentMessages()) == 3 })
	sent := transport.sentMessages()
	req.Equal("m2", sent[0].body)
	req.Equal("m4", sent[2].body)
}

func TestOutbound_DropsExpiredMessages(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	gate := &fakeGate{}
	gate.connected.Store(true)
	outbound := newOutbound(t, transport, gate, OutboundConfig{TTL: 30 * time.Second})

	base := time.Now()
	outbound.now = func() time.Time { return base }
	outbound.Enqueue("g", "stale", domain.SendOptions{})
	outbound.now = func() time.Time { return base.Add(31 * time.Second) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return outbound.QueueLength() == 0 })
	time.Sleep(20 * time.Millisecond)
	req.Empty(transport.sentMessages())
}

func TestOutbound_HaltsWhileDisconnected(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	gate := &fakeGate{}
	outbound := newOutbound(t, transport, gate, OutboundConfig{SendDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	outbound.Enqueue("g", "queued while offline", domain.SendOptions{})
	time.Sleep(50 * time.Millisecond)
	req.Empty(transport.sentMessages())
	req.Equal(1, outbound.QueueLength())

	gate.connected.Store(true)
	waitFor(t, 2*time.Second, func() bool { return len(transport.sentMessages()) == 1 })
}

func TestOutbound_RetriesThenAbandons(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	transport.sendErr = context.DeadlineExceeded
	transport.sendErrFor = -1 // always fail
	gate := &fakeGate{}
	gate.connected.Store(true)

	outbound := newOutbound(t, transport, gate, OutboundConfig{MaxRetries: 2, RetryBackoff: time.Millisecond, SendDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	outbound.Enqueue("g", "doomed", domain.SendOptions{})

	// 1 initial attempt + 2 retries, all failed, then dropped.
	waitFor(t, 2*time.Second, func() bool {
		return outbound.stats.Snapshot().FailedMessages == 3 && outbound.QueueLength() == 0
	})
	req.Empty(transport.sentMessages())
}

func TestOutbound_RetrySucceedsAfterTransientFailure(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	transport.sendErr = context.DeadlineExceeded
	transport.sendErrFor = 1 // fail once, then succeed
	gate := &fakeGate{}
	gate.connected.Store(true)
	outbound := newOutbound(t, transport, gate, OutboundConfig{MaxRetries: 3, RetryBackoff: time.Millisecond, SendDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = outbound.Run(ctx) }()

	outbound.Enqueue("g", "eventually", domain.SendOptions{})

	waitFor(t, 2*time.Second, func() bool { return len(transport.sentMessages()) == 1 })
	snapshot := outbound.stats.Snapshot()
	req.Equal(uint64(1), snapshot.FailedMessages)
	req.Equal(uint64(1), snapshot.ProcessedMessages)
}

func TestDedupKey_NormalizesWhitespaceAndCapsLength(t *testing.T) {
	req := require.New(t)

	req.Equal(DedupKey("g", "a b\tc"), DedupKey("g", "abc"))
	long := DedupKey("g", stringOfRunes(300))
	req.Len([]rune(long), len("g_")+100)
}

func stringOfRunes(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = '数'
	}
	return string(runes)
}
