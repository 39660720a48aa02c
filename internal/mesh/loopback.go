package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SentMessage records one outbound transmission on a Loopback.
type SentMessage struct {
	Text        string
	Channel     int
	Destination string
}

// Loopback is an in-process Interface for tests: Inject feeds inbound
// messages to the handler, Sent captures everything transmitted.
type Loopback struct {
	mu      sync.Mutex
	handler Handler
	sent    []SentMessage
}

func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) Connect(context.Context) error { return nil }
func (l *Loopback) Close() error                  { return nil }

func (l *Loopback) OnMessage(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *Loopback) Send(text string, channel int, destination string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, SentMessage{Text: text, Channel: channel, Destination: destination})
	return nil
}

func (l *Loopback) Info() Info {
	return Info{Connected: true, LocalNodeID: "!loopback"}
}

// Inject delivers an inbound message as if it arrived from the radio.
func (l *Loopback) Inject(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.RxTime.IsZero() {
		msg.RxTime = time.Now().UTC()
	}
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// Sent returns a copy of every message transmitted so far.
func (l *Loopback) Sent() []SentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentMessage, len(l.sent))
	copy(out, l.sent)
	return out
}
