package mesh

import "context"

// Handler receives every inbound message the link delivers.
type Handler func(Message)

// Interface is the seam between the dispatch core and the physical radio
// link. The gateway client implements it against a real node; tests use
// the in-process Loopback.
type Interface interface {
	// Connect establishes the link and starts delivering inbound messages
	// to the registered handler.
	Connect(ctx context.Context) error
	Close() error

	// Send transmits text on a channel. An empty destination broadcasts;
	// otherwise the message is addressed to that node.
	Send(text string, channel int, destination string) error

	// OnMessage registers the inbound handler. Must be called before Connect.
	OnMessage(h Handler)

	Info() Info
}

// Sender is the outbound half of Interface, all most consumers need.
type Sender interface {
	Send(text string, channel int, destination string) error
}
