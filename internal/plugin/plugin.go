package plugin

import (
	"context"

	"github.com/bbmesh/bbmesh/internal/mesh"
)

// Context is the view of the world a plugin invocation receives. State is a
// copy of the session's plugin state blob; plugins never hold a live
// reference to the session.
type Context struct {
	Identity    string
	DisplayName string
	Channel     int
	State       map[string]any
	Message     mesh.Message
	Settings    map[string]any
}

// Response is what a stateful plugin returns. Continue true keeps the
// closed input loop open: every next message from the identity is routed to
// Resume until a call returns Continue false or faults.
type Response struct {
	Text     string
	Continue bool
	State    map[string]any
	Err      string
}

// Responder is the stateless plugin shape: one call, one reply, no session
// side effects.
type Responder interface {
	Name() string
	Respond(ctx context.Context, pc Context) (string, error)
}

// Interactive is the stateful plugin shape. Start opens a conversation;
// Resume receives every subsequent message while the loop is held.
type Interactive interface {
	Name() string
	Start(ctx context.Context, pc Context) (Response, error)
	Resume(ctx context.Context, pc Context) (Response, error)
}
