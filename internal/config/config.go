package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("90s", "5m") or as a bare number of seconds, which is
// what hand-written BBS configs tend to contain.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return fmt.Errorf("invalid duration value at line %d", value.Line)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config contains all runtime settings for the BBS server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Menu      MenuConfig      `yaml:"menu"`
	Plugins   PluginConfig    `yaml:"plugins"`
	NodeTrack NodeTrackConfig `yaml:"node_tracking"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type ServerConfig struct {
	Name             string   `yaml:"name"`
	WelcomeMessage   string   `yaml:"welcome_message"`
	MOTDFile         string   `yaml:"motd_file"`
	MaxMessageLength int      `yaml:"max_message_length"`
	SessionTimeout   Duration `yaml:"session_timeout"`
	SweepInterval    Duration `yaml:"sweep_interval"`
	RateLimitCount   int      `yaml:"rate_limit_messages"`
	RateLimitWindow  Duration `yaml:"rate_limit_window"`
	MessageSendDelay Duration `yaml:"message_send_delay"`
}

type MeshConfig struct {
	GatewayURL        string `yaml:"gateway_url"`
	MonitoredChannels []int  `yaml:"monitored_channels"`
	ResponseChannels  []int  `yaml:"response_channels"`
	DirectMessageOnly bool   `yaml:"direct_message_only"`
}

type MenuConfig struct {
	MenuFile     string   `yaml:"menu_file"`
	MaxDepth     int      `yaml:"max_depth"`
	BackCommands []string `yaml:"back_commands"`
	HomeCommands []string `yaml:"home_commands"`
	HelpCommands []string `yaml:"help_commands"`
}

type PluginConfig struct {
	Enabled  []string                  `yaml:"enabled"`
	Timeout  Duration                  `yaml:"timeout"`
	Settings map[string]map[string]any `yaml:"settings"`
}

type NodeTrackConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Driver             string   `yaml:"driver"`
	Path               string   `yaml:"path"`
	DatabaseURL        string   `yaml:"database_url"`
	NewNodeThreshold   Duration `yaml:"new_node_threshold"`
	NotificationFormat string   `yaml:"notification_format"`
	AdminNodes         []string `yaml:"admin_nodes"`
	AdminKey           string   `yaml:"admin_key"`
	KeyRegistration    bool     `yaml:"key_registration"`
	RetentionDays      int      `yaml:"retention_days"`
}

type HTTPConfig struct {
	BindAddr         string `yaml:"bind_addr"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the configuration used when a field is absent from the
// YAML file. Values mirror a small single-node deployment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:             "BBMesh BBS",
			WelcomeMessage:   "Welcome to BBMesh BBS!",
			MaxMessageLength: 200,
			SessionTimeout:   Duration(5 * time.Minute),
			SweepInterval:    Duration(time.Minute),
			RateLimitCount:   10,
			RateLimitWindow:  Duration(time.Minute),
			MessageSendDelay: Duration(time.Second),
		},
		Mesh: MeshConfig{
			GatewayURL:        "ws://localhost:8765/ws",
			MonitoredChannels: []int{0},
			ResponseChannels:  []int{0},
		},
		Menu: MenuConfig{
			MenuFile:     "config/menus.yaml",
			MaxDepth:     10,
			BackCommands: []string{"back", "b", ".."},
			HomeCommands: []string{"home", "main", "menu"},
			HelpCommands: []string{"help", "h", "?"},
		},
		Plugins: PluginConfig{
			Enabled: []string{"welcome", "help", "ping", "time", "calculator", "number_guess", "node_lookup"},
			Timeout: Duration(30 * time.Second),
		},
		NodeTrack: NodeTrackConfig{
			Enabled:            true,
			Driver:             "sqlite",
			Path:               "data/bbmesh.db",
			NewNodeThreshold:   Duration(30 * 24 * time.Hour),
			NotificationFormat: "New node: {node_name} ({node_id})",
			KeyRegistration:    true,
			RetentionDays:      365,
		},
		HTTP: HTTPConfig{
			BindAddr:         ":8080",
			MetricsNamespace: "bbmesh",
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot safely run with.
// Runs at startup, before any message is processed.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Name) == "" {
		return fmt.Errorf("server.name must not be empty")
	}
	if c.Server.MaxMessageLength < 20 {
		return fmt.Errorf("server.max_message_length %d too small (min 20)", c.Server.MaxMessageLength)
	}
	if c.Server.SessionTimeout <= 0 {
		return fmt.Errorf("server.session_timeout must be positive")
	}
	if c.Server.SweepInterval <= 0 {
		return fmt.Errorf("server.sweep_interval must be positive")
	}
	if c.Server.RateLimitCount <= 0 {
		return fmt.Errorf("server.rate_limit_messages must be positive")
	}
	if c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive")
	}
	if c.Server.MessageSendDelay < 0 {
		return fmt.Errorf("server.message_send_delay must not be negative")
	}
	if strings.TrimSpace(c.Mesh.GatewayURL) == "" {
		return fmt.Errorf("mesh.gateway_url must not be empty")
	}
	if len(c.Mesh.ResponseChannels) == 0 {
		return fmt.Errorf("mesh.response_channels must not be empty")
	}
	if c.Menu.MaxDepth <= 0 {
		return fmt.Errorf("menu.max_depth must be positive")
	}
	if c.Plugins.Timeout <= 0 {
		return fmt.Errorf("plugins.timeout must be positive")
	}
	switch c.NodeTrack.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("node_tracking.driver %q unknown (sqlite|postgres|memory)", c.NodeTrack.Driver)
	}
	if c.NodeTrack.Driver == "sqlite" && strings.TrimSpace(c.NodeTrack.Path) == "" {
		return fmt.Errorf("node_tracking.path required for sqlite driver")
	}
	if c.NodeTrack.Driver == "postgres" && strings.TrimSpace(c.NodeTrack.DatabaseURL) == "" {
		return fmt.Errorf("node_tracking.database_url required for postgres driver")
	}
	if c.NodeTrack.Enabled && c.NodeTrack.NewNodeThreshold <= 0 {
		return fmt.Errorf("node_tracking.new_node_threshold must be positive")
	}
	return nil
}

// PluginSettings returns the settings block for a named plugin, never nil.
func (c Config) PluginSettings(name string) map[string]any {
	if s, ok := c.Plugins.Settings[name]; ok && s != nil {
		return s
	}
	return map[string]any{}
}

// LoadMOTD reads the configured message-of-the-day file. A missing or
// unreadable file is not an error; the BBS simply runs without a MOTD.
func (c Config) LoadMOTD() string {
	if strings.TrimSpace(c.Server.MOTDFile) == "" {
		return ""
	}
	data, err := os.ReadFile(c.Server.MOTDFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
