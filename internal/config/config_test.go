package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestDurationFromSeconds(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("300"), &d); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if d.Std() != 5*time.Minute {
		t.Fatalf("Duration = %v, want 5m", d.Std())
	}
}

func TestDurationFromString(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"90s"`), &d); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Fatalf("Duration = %v, want 90s", d.Std())
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("unmarshal of %q should fail", "soon")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bbmesh.yaml")
	content := `
server:
  name: "Test BBS"
  session_timeout: 120
  rate_limit_messages: 3
mesh:
  gateway_url: "ws://radio:9000/ws"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Name != "Test BBS" {
		t.Fatalf("Name = %q", cfg.Server.Name)
	}
	if cfg.Server.SessionTimeout.Std() != 2*time.Minute {
		t.Fatalf("SessionTimeout = %v", cfg.Server.SessionTimeout.Std())
	}
	if cfg.Server.RateLimitCount != 3 {
		t.Fatalf("RateLimitCount = %d", cfg.Server.RateLimitCount)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.MaxMessageLength != 200 {
		t.Fatalf("MaxMessageLength = %d, want default 200", cfg.Server.MaxMessageLength)
	}
	if cfg.Mesh.GatewayURL != "ws://radio:9000/ws" {
		t.Fatalf("GatewayURL = %q", cfg.Mesh.GatewayURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load() of missing file should fail")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty name", func(c *Config) { c.Server.Name = " " }, "server.name"},
		{"tiny max length", func(c *Config) { c.Server.MaxMessageLength = 10 }, "max_message_length"},
		{"zero timeout", func(c *Config) { c.Server.SessionTimeout = 0 }, "session_timeout"},
		{"zero rate window", func(c *Config) { c.Server.RateLimitWindow = 0 }, "rate_limit_window"},
		{"no gateway", func(c *Config) { c.Mesh.GatewayURL = "" }, "gateway_url"},
		{"no response channels", func(c *Config) { c.Mesh.ResponseChannels = nil }, "response_channels"},
		{"bad driver", func(c *Config) { c.NodeTrack.Driver = "oracle" }, "driver"},
		{"sqlite without path", func(c *Config) { c.NodeTrack.Path = "" }, "path"},
		{"postgres without url", func(c *Config) {
			c.NodeTrack.Driver = "postgres"
			c.NodeTrack.DatabaseURL = ""
		}, "database_url"},
	}

	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: Validate() error = %v, want mention of %q", tc.name, err, tc.want)
		}
	}
}

func TestPluginSettings(t *testing.T) {
	cfg := Default()
	cfg.Plugins.Settings = map[string]map[string]any{
		"ping": {"include_signal_info": false},
	}
	if got := cfg.PluginSettings("ping"); got["include_signal_info"] != false {
		t.Fatalf("PluginSettings(ping) = %v", got)
	}
	if got := cfg.PluginSettings("missing"); got == nil {
		t.Fatalf("PluginSettings of unknown plugin should be an empty map, not nil")
	}
}

func TestLoadMOTD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motd.txt")
	os.WriteFile(path, []byte("hello mesh\n"), 0o644)

	cfg := Default()
	cfg.Server.MOTDFile = path
	if got := cfg.LoadMOTD(); got != "hello mesh" {
		t.Fatalf("LoadMOTD() = %q", got)
	}

	cfg.Server.MOTDFile = filepath.Join(t.TempDir(), "missing.txt")
	if got := cfg.LoadMOTD(); got != "" {
		t.Fatalf("missing MOTD file should yield empty, got %q", got)
	}
}
