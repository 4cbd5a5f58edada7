package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"capital-bot/domain"
)

type sentMessage struct {
	targetID string
	body     string
}

// fakeTransport is a hand-rolled stand-in for the chat session boundary.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []sentMessage
	sendErr    error
	sendErrFor int // fail this many sends, then succeed
	pingErr    error
	startErr   error
	started    int32
	stopped    int32
	holdSend   chan struct{} // when set, Send blocks until closed
	sendBegun  chan struct{} // closed once the first Send is entered

	events   chan domain.TransportEvent
	messages chan domain.InboundMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan domain.TransportEvent, 16),
		messages: make(chan domain.InboundMessage, 16),
	}
}

func (f *fakeTransport) Start(context.Context) error {
	atomic.AddInt32(&f.started, 1)
	return f.startErr
}

func (f *fakeTransport) Stop() {
	atomic.AddInt32(&f.stopped, 1)
}

func (f *fakeTransport) Send(_ context.Context, targetID, body string, _ domain.SendOptions) error {
	f.mu.Lock()
	begun := f.sendBegun
	f.sendBegun = nil
	hold := f.holdSend
	f.mu.Unlock()

	if begun != nil {
		close(begun)
	}
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErrFor > 0 {
		f.sendErrFor--
		return f.sendErr
	}
	if f.sendErrFor == -1 {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{targetID: targetID, body: body})
	return nil
}

func (f *fakeTransport) Ping(context.Context) error { return f.pingErr }

func (f *fakeTransport) Events() <-chan domain.TransportEvent    { return f.events }
func (f *fakeTransport) Messages() <-chan domain.InboundMessage  { return f.messages }

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage{}, f.sent...)
}

func (f *fakeTransport) startCount() int32 { return atomic.LoadInt32(&f.started) }

// fakeGate is a switchable connection gate.
type fakeGate struct{ connected atomic.Bool }

func (g *fakeGate) Connected() bool { return g.connected.Load() }
