package menu

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionKind names what a selected option does.
type ActionKind string

const (
	ActionShowInfo  ActionKind = "show_message"
	ActionGotoMenu  ActionKind = "goto_menu"
	ActionRunPlugin ActionKind = "run_plugin"
)

// Option is one selectable entry in a menu.
type Option struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Action      ActionKind `yaml:"action"`
	Target      string     `yaml:"target"`
	Plugin      string     `yaml:"plugin"`
	Message     string     `yaml:"message"`
	Enabled     *bool      `yaml:"enabled"`
}

func (o Option) enabled() bool { return o.Enabled == nil || *o.Enabled }

// Menu is one node of the tree. Options are keyed by the selector the user
// types ("1", "2", ...).
type Menu struct {
	Name        string
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Parent      string            `yaml:"parent"`
	Options     map[string]Option `yaml:"options"`
}

// Render produces the text shown to a user browsing this menu. Options are
// listed in selector order so repeated renders are stable on air.
func (m *Menu) Render(showDescriptions bool) string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Description != "" {
		b.WriteString("\n")
		b.WriteString(m.Description)
	}
	b.WriteString("\n")

	keys := make([]string, 0, len(m.Options))
	for k := range m.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		opt := m.Options[k]
		if !opt.enabled() {
			continue
		}
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(". ")
		b.WriteString(opt.Title)
		if showDescriptions && opt.Description != "" {
			b.WriteString(" - ")
			b.WriteString(opt.Description)
		}
	}

	b.WriteString("\nSend option number or name")
	return b.String()
}

// Tree is the immutable, validated menu hierarchy. Root is the menu with no
// parent.
type Tree struct {
	menus map[string]*Menu
	root  string
}

type menuFile struct {
	Menus map[string]*Menu `yaml:"menus"`
}

// LoadTree reads and validates a menu definition file. Any structural
// problem is fatal here so it can never surface mid-conversation.
func LoadTree(path string, maxDepth int) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu file: %w", err)
	}
	return ParseTree(data, maxDepth)
}

// ParseTree builds a Tree from YAML bytes. Split from LoadTree for tests.
func ParseTree(data []byte, maxDepth int) (*Tree, error) {
	var file menuFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse menu file: %w", err)
	}
	if len(file.Menus) == 0 {
		return nil, fmt.Errorf("menu file defines no menus")
	}

	t := &Tree{menus: file.Menus}
	for name, m := range t.menus {
		m.Name = name
		if m.Title == "" {
			m.Title = name
		}
		if m.Options == nil {
			m.Options = map[string]Option{}
		}
	}
	if err := t.validate(maxDepth); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) validate(maxDepth int) error {
	roots := 0
	for name, m := range t.menus {
		if m.Parent == "" {
			roots++
			t.root = name
			continue
		}
		if _, ok := t.menus[m.Parent]; !ok {
			return fmt.Errorf("menu %q has unknown parent %q", name, m.Parent)
		}
	}
	if roots != 1 {
		return fmt.Errorf("menu tree must have exactly one root, found %d", roots)
	}

	// Walk each parent chain: detects cycles and enforces the depth bound.
	for name := range t.menus {
		depth := 0
		seen := map[string]bool{}
		for cur := name; cur != ""; cur = t.menus[cur].Parent {
			if seen[cur] {
				return fmt.Errorf("menu %q is part of a parent cycle", name)
			}
			seen[cur] = true
			depth++
			if depth > maxDepth {
				return fmt.Errorf("menu %q exceeds max depth %d", name, maxDepth)
			}
		}
	}

	for name, m := range t.menus {
		for key, opt := range m.Options {
			switch opt.Action {
			case ActionGotoMenu:
				if _, ok := t.menus[opt.Target]; !ok {
					return fmt.Errorf("menu %q option %q targets unknown menu %q", name, key, opt.Target)
				}
			case ActionRunPlugin:
				if strings.TrimSpace(opt.Plugin) == "" {
					return fmt.Errorf("menu %q option %q names no plugin", name, key)
				}
			case ActionShowInfo:
			default:
				return fmt.Errorf("menu %q option %q has unknown action %q", name, key, opt.Action)
			}
		}
	}
	return nil
}

// Root returns the root menu name.
func (t *Tree) Root() string { return t.root }

// Get looks up a menu by name.
func (t *Tree) Get(name string) (*Menu, bool) {
	m, ok := t.menus[name]
	return m, ok
}

// Names lists all menu names.
func (t *Tree) Names() []string {
	out := make([]string, 0, len(t.menus))
	for name := range t.menus {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PluginNames collects every plugin referenced by a run_plugin option, for
// the startup check that all referenced plugins are registered.
func (t *Tree) PluginNames() []string {
	set := map[string]bool{}
	for _, m := range t.menus {
		for _, opt := range m.Options {
			if opt.Action == ActionRunPlugin {
				set[opt.Plugin] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
