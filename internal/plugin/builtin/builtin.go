// Package builtin holds the plugins shipped with the server. They double as
// the reference consumers of the plugin contract: the simple ones are
// stateless responders, the number-guess game is a stateful interactive
// handler.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/bbmesh/bbmesh/internal/plugin"
)

func settingString(settings map[string]any, key, fallback string) string {
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func settingInt(settings map[string]any, key string, fallback int) int {
	switch v := settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func settingBool(settings map[string]any, key string, fallback bool) bool {
	if v, ok := settings[key].(bool); ok {
		return v
	}
	return fallback
}

// Welcome greets a user by name.
type Welcome struct {
	ServerName     string
	WelcomeMessage string
}

func (Welcome) Name() string { return "welcome" }

func (p Welcome) Respond(_ context.Context, pc plugin.Context) (string, error) {
	return fmt.Sprintf("Welcome to %s, %s!\n%s\nSend HELP for commands or MENU for options.",
		p.ServerName, pc.DisplayName, p.WelcomeMessage), nil
}

// Help lists the universal commands.
type Help struct {
	ServerName string
}

func (Help) Name() string { return "help" }

func (p Help) Respond(_ context.Context, _ plugin.Context) (string, error) {
	return fmt.Sprintf("%s Commands:\nMENU - Main menu\nHELP - This help\nBACK - Previous menu\nSend a menu number to pick an option.",
		p.ServerName), nil
}

// Clock reports the current server time.
type Clock struct {
	Now func() time.Time
}

func (Clock) Name() string { return "time" }

func (p Clock) Respond(_ context.Context, pc plugin.Context) (string, error) {
	format := settingString(pc.Settings, "format", "2006-01-02 15:04:05")
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return "Current time: " + now().Format(format), nil
}

// Ping answers with the link quality of the triggering packet, the one
// place the opaque signal metrics surface to users.
type Ping struct{}

func (Ping) Name() string { return "ping" }

func (p Ping) Respond(_ context.Context, pc plugin.Context) (string, error) {
	if !settingBool(pc.Settings, "include_signal_info", true) {
		return "Pong! BBS is alive and responding.", nil
	}
	return fmt.Sprintf("Pong! BBS is alive.\nSignal: %.1fdB SNR, %ddBm RSSI",
		pc.Message.SNR, pc.Message.RSSI), nil
}

// NodeLookup echoes what the BBS knows about the sender.
type NodeLookup struct{}

func (NodeLookup) Name() string { return "node_lookup" }

func (p NodeLookup) Respond(_ context.Context, pc plugin.Context) (string, error) {
	text := fmt.Sprintf("Node Info: %s\nID: %s\nChannel: %d", pc.DisplayName, pc.Identity, pc.Channel)
	if settingBool(pc.Settings, "show_signal_info", true) {
		text += fmt.Sprintf("\nSNR: %.1fdB\nRSSI: %ddBm", pc.Message.SNR, pc.Message.RSSI)
	}
	return text, nil
}
