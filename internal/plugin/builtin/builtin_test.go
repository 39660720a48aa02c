package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bbmesh/bbmesh/internal/mesh"
	"github.com/bbmesh/bbmesh/internal/plugin"
)

func TestWelcome(t *testing.T) {
	p := Welcome{ServerName: "TestBBS", WelcomeMessage: "Hi there."}
	text, err := p.Respond(context.Background(), plugin.Context{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(text, "TestBBS") || !strings.Contains(text, "Alice") {
		t.Fatalf("Respond() = %q", text)
	}
}

func TestClockUsesConfiguredFormat(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	p := Clock{Now: func() time.Time { return fixed }}

	text, err := p.Respond(context.Background(), plugin.Context{
		Settings: map[string]any{"format": "15:04"},
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "Current time: 15:09" {
		t.Fatalf("Respond() = %q", text)
	}
}

func TestPingEchoesSignal(t *testing.T) {
	pc := plugin.Context{Message: mesh.Message{SNR: 7.5, RSSI: -80}}
	text, err := Ping{}.Respond(context.Background(), pc)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(text, "7.5dB") || !strings.Contains(text, "-80dBm") {
		t.Fatalf("Respond() = %q", text)
	}
}

func TestPingSignalInfoOptional(t *testing.T) {
	pc := plugin.Context{Settings: map[string]any{"include_signal_info": false}}
	text, err := Ping{}.Respond(context.Background(), pc)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if strings.Contains(text, "SNR") {
		t.Fatalf("Respond() = %q, signal info should be omitted", text)
	}
}

func TestNodeLookup(t *testing.T) {
	pc := plugin.Context{
		Identity:    "!a1b2c3d4",
		DisplayName: "Alice",
		Channel:     2,
		Message:     mesh.Message{SNR: 3.25, RSSI: -95},
	}
	text, err := NodeLookup{}.Respond(context.Background(), pc)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	for _, want := range []string{"Alice", "!a1b2c3d4", "Channel: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("Respond() = %q, missing %q", text, want)
		}
	}
}
