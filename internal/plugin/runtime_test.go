package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bbmesh/bbmesh/internal/mesh"
)

func msg(text string) mesh.Message {
	return mesh.Message{Text: text}
}

type echoResponder struct{}

func (echoResponder) Name() string { return "echo" }

func (e echoResponder) Respond(_ context.Context, pc Context) (string, error) {
	return "echo: " + pc.Message.Text, nil
}

type panicResponder struct{}

func (panicResponder) Name() string { return "boom" }
func (panicResponder) Respond(context.Context, Context) (string, error) {
	panic("kaboom")
}

type slowResponder struct{ delay time.Duration }

func (slowResponder) Name() string { return "slow" }
func (s slowResponder) Respond(ctx context.Context, _ Context) (string, error) {
	select {
	case <-time.After(s.delay):
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type countingInteractive struct{}

func (countingInteractive) Name() string { return "counter" }

func (countingInteractive) Start(_ context.Context, _ Context) (Response, error) {
	return Response{Text: "count: 0", Continue: true, State: map[string]any{"n": 0}}, nil
}

func (countingInteractive) Resume(_ context.Context, pc Context) (Response, error) {
	n, _ := pc.State["n"].(int)
	n++
	if n >= 3 {
		return Response{Text: "done"}, nil
	}
	return Response{Text: "counting", Continue: true, State: map[string]any{"n": n}}, nil
}

func TestRespond(t *testing.T) {
	rt := NewRuntime(time.Second)
	if err := rt.RegisterResponder(echoResponder{}, nil); err != nil {
		t.Fatalf("RegisterResponder() error = %v", err)
	}

	text, err := rt.Respond(context.Background(), "echo", Context{Message: msg("hi")})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "echo: hi" {
		t.Fatalf("Respond() = %q", text)
	}
}

func TestDoubleRegistrationRejected(t *testing.T) {
	rt := NewRuntime(time.Second)
	if err := rt.RegisterResponder(echoResponder{}, nil); err != nil {
		t.Fatalf("first register error = %v", err)
	}
	if err := rt.RegisterResponder(echoResponder{}, nil); err == nil {
		t.Fatalf("second register of same name should fail")
	}
}

func TestUnknownPlugin(t *testing.T) {
	rt := NewRuntime(time.Second)
	_, err := rt.Respond(context.Background(), "ghost", Context{})
	if !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("Respond() error = %v, want ErrUnknownPlugin", err)
	}
}

func TestShapeMismatch(t *testing.T) {
	rt := NewRuntime(time.Second)
	rt.RegisterResponder(echoResponder{}, nil)
	rt.RegisterInteractive(countingInteractive{}, nil)

	if _, err := rt.Start(context.Background(), "echo", Context{}); err == nil {
		t.Fatalf("Start() on a responder should fail")
	}
	if _, err := rt.Respond(context.Background(), "counter", Context{}); err == nil {
		t.Fatalf("Respond() on an interactive should fail")
	}
}

func TestPanicRecovered(t *testing.T) {
	rt := NewRuntime(time.Second)
	rt.RegisterResponder(panicResponder{}, nil)

	_, err := rt.Respond(context.Background(), "boom", Context{})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("Respond() error = %v, want panic converted to error", err)
	}
}

func TestTimeoutAbandonsCall(t *testing.T) {
	rt := NewRuntime(50 * time.Millisecond)
	rt.RegisterResponder(slowResponder{delay: 5 * time.Second}, nil)

	start := time.Now()
	_, err := rt.Respond(context.Background(), "slow", Context{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Respond() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timed-out call blocked for %v", elapsed)
	}
}

func TestInteractiveLoop(t *testing.T) {
	rt := NewRuntime(time.Second)
	rt.RegisterInteractive(countingInteractive{}, nil)
	ctx := context.Background()

	resp, err := rt.Start(ctx, "counter", Context{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !resp.Continue {
		t.Fatalf("Start() should hold the loop")
	}

	for i := 0; i < 2; i++ {
		resp, err = rt.Resume(ctx, "counter", Context{State: resp.State})
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
	}
	if resp.Continue {
		t.Fatalf("loop should have released after 3 resumes")
	}
	if resp.Text != "done" {
		t.Fatalf("final text = %q", resp.Text)
	}
}

func TestSettingsPassedToPlugin(t *testing.T) {
	rt := NewRuntime(time.Second)
	probe := settingsProbe{}
	rt.RegisterResponder(probe, map[string]any{"greeting": "yo"})

	text, err := rt.Respond(context.Background(), "probe", Context{})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "yo" {
		t.Fatalf("Respond() = %q, settings not delivered", text)
	}
}

type settingsProbe struct{}

func (settingsProbe) Name() string { return "probe" }
func (settingsProbe) Respond(_ context.Context, pc Context) (string, error) {
	if v, ok := pc.Settings["greeting"].(string); ok {
		return v, nil
	}
	return "", nil
}
