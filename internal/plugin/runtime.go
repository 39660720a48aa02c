package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

var (
	ErrUnknownPlugin = errors.New("unknown plugin")
	ErrTimeout       = errors.New("plugin call timed out")
)

// registration is the tagged variant for the two plugin shapes. Exactly one
// of responder/interactive is set, decided once when the plugin registers.
type registration struct {
	responder   Responder
	interactive Interactive
	settings    map[string]any
}

func (r registration) name() string {
	if r.responder != nil {
		return r.responder.Name()
	}
	return r.interactive.Name()
}

// Runtime owns the plugin registry and the invocation boundary: every call
// is bounded by the configured timeout, and panics or errors inside a
// handler never escape past it.
type Runtime struct {
	plugins map[string]registration
	timeout time.Duration
}

func NewRuntime(timeout time.Duration) *Runtime {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runtime{
		plugins: make(map[string]registration),
		timeout: timeout,
	}
}

// RegisterResponder adds a stateless plugin.
func (rt *Runtime) RegisterResponder(p Responder, settings map[string]any) error {
	return rt.register(registration{responder: p, settings: settings})
}

// RegisterInteractive adds a stateful plugin.
func (rt *Runtime) RegisterInteractive(p Interactive, settings map[string]any) error {
	return rt.register(registration{interactive: p, settings: settings})
}

func (rt *Runtime) register(reg registration) error {
	name := reg.name()
	if _, exists := rt.plugins[name]; exists {
		return fmt.Errorf("plugin %q registered twice", name)
	}
	rt.plugins[name] = reg
	return nil
}

// Has reports whether a plugin is registered.
func (rt *Runtime) Has(name string) bool {
	_, ok := rt.plugins[name]
	return ok
}

// IsInteractive reports whether the named plugin holds the stateful shape.
func (rt *Runtime) IsInteractive(name string) bool {
	reg, ok := rt.plugins[name]
	return ok && reg.interactive != nil
}

// Names lists registered plugins.
func (rt *Runtime) Names() []string {
	out := make([]string, 0, len(rt.plugins))
	for name := range rt.plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// callMode selects which operation an invocation runs.
type callMode int

const (
	modeRespond callMode = iota
	modeStart
	modeResume
)

// Invoke runs a plugin call under the runtime timeout. The handler runs on
// its own goroutine; on timeout the result is abandoned and ErrTimeout
// returned, so a stuck handler can never hold a session hostage.
func (rt *Runtime) invoke(ctx context.Context, name string, mode callMode, pc Context) (Response, error) {
	reg, ok := rt.plugins[name]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	pc.Settings = reg.settings

	callCtx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("plugin %s panicked: %v", name, r)}
			}
		}()

		switch mode {
		case modeRespond:
			text, err := reg.responder.Respond(callCtx, pc)
			done <- result{resp: Response{Text: text}, err: err}
		case modeStart:
			resp, err := reg.interactive.Start(callCtx, pc)
			done <- result{resp: resp, err: err}
		case modeResume:
			resp, err := reg.interactive.Resume(callCtx, pc)
			done <- result{resp: resp, err: err}
		}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-callCtx.Done():
		log.Printf("plugin: %s call abandoned after %s", name, rt.timeout)
		return Response{}, ErrTimeout
	}
}

// Respond invokes a stateless plugin.
func (rt *Runtime) Respond(ctx context.Context, name string, pc Context) (string, error) {
	reg, ok := rt.plugins[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	if reg.responder == nil {
		return "", fmt.Errorf("plugin %s is interactive, not a responder", name)
	}
	resp, err := rt.invoke(ctx, name, modeRespond, pc)
	return resp.Text, err
}

// Start opens an interactive plugin conversation.
func (rt *Runtime) Start(ctx context.Context, name string, pc Context) (Response, error) {
	reg, ok := rt.plugins[name]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	if reg.interactive == nil {
		return Response{}, fmt.Errorf("plugin %s is a responder, not interactive", name)
	}
	return rt.invoke(ctx, name, modeStart, pc)
}

// Resume continues an interactive plugin conversation.
func (rt *Runtime) Resume(ctx context.Context, name string, pc Context) (Response, error) {
	reg, ok := rt.plugins[name]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	if reg.interactive == nil {
		return Response{}, fmt.Errorf("plugin %s is a responder, not interactive", name)
	}
	return rt.invoke(ctx, name, modeResume, pc)
}
