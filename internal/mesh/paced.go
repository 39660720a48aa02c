package mesh

import (
	"context"
	"log"
	"sync"
	"time"
)

type outboundItem struct {
	text        string
	channel     int
	destination string
}

// PacedSender queues outbound messages and transmits them with a minimum
// delay between sends, so a burst of responses does not swamp the
// narrowband link. Queue order is transmit order, which preserves the
// per-identity response ordering the dispatcher requires.
type PacedSender struct {
	inner Sender
	delay time.Duration

	mu      sync.Mutex
	queue   []outboundItem
	wake    chan struct{}
	started bool
}

func NewPacedSender(inner Sender, delay time.Duration) *PacedSender {
	return &PacedSender{
		inner: inner,
		delay: delay,
		wake:  make(chan struct{}, 1),
	}
}

// Start launches the transmit loop. Safe to call once.
func (p *PacedSender) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Send enqueues a message for paced transmission. It never blocks on the
// radio link.
func (p *PacedSender) Send(text string, channel int, destination string) error {
	p.mu.Lock()
	p.queue = append(p.queue, outboundItem{text: text, channel: channel, destination: destination})
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending reports the number of queued, untransmitted messages.
func (p *PacedSender) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *PacedSender) run(ctx context.Context) {
	for {
		item, ok := p.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		if err := p.inner.Send(item.text, item.channel, item.destination); err != nil {
			log.Printf("mesh: paced send failed: %v", err)
		}

		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.delay):
			}
		}
	}
}

func (p *PacedSender) pop() (outboundItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return outboundItem{}, false
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	return item, true
}
