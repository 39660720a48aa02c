package menu

import "strings"

// Command is a universal navigation command recognized on every menu.
type Command string

const (
	CmdBack Command = "back"
	CmdHome Command = "home"
	CmdHelp Command = "help"
)

// Action is the resolved meaning of one line of user input.
type Action struct {
	Command Command // set for universal commands, empty otherwise
	Kind    ActionKind
	Target  string // goto_menu target
	Plugin  string // run_plugin plugin name
	Message string // show_message payload
	Title   string // selected option title, for logging
}

// NavigationError reports input that matched nothing. Guidance carries the
// rendered current menu so the user is never left without options.
type NavigationError struct {
	Input    string
	Guidance string
}

func (e *NavigationError) Error() string {
	return "no menu option matches " + e.Input
}

// Navigator interprets free text against the current menu. Synonym sets
// come from configuration; matching is case-insensitive.
type Navigator struct {
	tree             *Tree
	backWords        map[string]bool
	homeWords        map[string]bool
	helpWords        map[string]bool
	showDescriptions bool
}

func NewNavigator(tree *Tree, backWords, homeWords, helpWords []string) *Navigator {
	return &Navigator{
		tree:      tree,
		backWords: wordSet(backWords),
		homeWords: wordSet(homeWords),
		helpWords: wordSet(helpWords),
	}
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

// Resolve parses input against currentMenu. Order: universal commands,
// exact selector key, then option-title prefix. Anything else is a
// NavigationError carrying the menu render as guidance.
func (n *Navigator) Resolve(currentMenu, input string) (Action, error) {
	m, ok := n.tree.Get(currentMenu)
	if !ok {
		// Session points at a menu that no longer exists; fall back to root.
		m, _ = n.tree.Get(n.tree.Root())
	}

	key := strings.ToLower(strings.TrimSpace(input))

	switch {
	case n.backWords[key]:
		return Action{Command: CmdBack}, nil
	case n.homeWords[key]:
		return Action{Command: CmdHome}, nil
	case n.helpWords[key]:
		return Action{Command: CmdHelp}, nil
	}

	opt, ok := n.lookup(m, key)
	if !ok {
		return Action{}, &NavigationError{Input: input, Guidance: m.Render(n.showDescriptions)}
	}

	return Action{
		Kind:    opt.Action,
		Target:  opt.Target,
		Plugin:  opt.Plugin,
		Message: opt.Message,
		Title:   opt.Title,
	}, nil
}

func (n *Navigator) lookup(m *Menu, key string) (Option, bool) {
	if opt, ok := m.Options[key]; ok && opt.enabled() {
		return opt, true
	}
	if key == "" {
		return Option{}, false
	}
	for _, opt := range m.Options {
		if opt.enabled() && strings.HasPrefix(strings.ToLower(opt.Title), key) {
			return opt, true
		}
	}
	return Option{}, false
}

// Render returns the display text for a menu, falling back to the root for
// unknown names.
func (n *Navigator) Render(menuName string) string {
	m, ok := n.tree.Get(menuName)
	if !ok {
		m, _ = n.tree.Get(n.tree.Root())
	}
	return m.Render(n.showDescriptions)
}

// Tree exposes the underlying tree.
func (n *Navigator) Tree() *Tree { return n.tree }
