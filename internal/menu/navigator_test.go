package menu

import (
	"errors"
	"strings"
	"testing"
)

func testNavigator(t *testing.T) *Navigator {
	t.Helper()
	tree := mustParse(t, testMenus)
	return NewNavigator(tree,
		[]string{"back", "b", ".."},
		[]string{"home", "main", "menu"},
		[]string{"help", "h", "?"})
}

func TestResolveUniversalCommands(t *testing.T) {
	nav := testNavigator(t)

	cases := []struct {
		input string
		want  Command
	}{
		{"back", CmdBack},
		{"B", CmdBack},
		{"..", CmdBack},
		{" home ", CmdHome},
		{"MENU", CmdHome},
		{"?", CmdHelp},
	}
	for _, tc := range cases {
		action, err := nav.Resolve("games", tc.input)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tc.input, err)
		}
		if action.Command != tc.want {
			t.Fatalf("Resolve(%q).Command = %q, want %q", tc.input, action.Command, tc.want)
		}
	}
}

func TestResolveSelectorKey(t *testing.T) {
	nav := testNavigator(t)

	action, err := nav.Resolve("main", "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action.Kind != ActionGotoMenu || action.Target != "games" {
		t.Fatalf("Resolve(1) = %+v, want goto games", action)
	}
}

func TestResolveTitlePrefix(t *testing.T) {
	nav := testNavigator(t)

	action, err := nav.Resolve("main", "gam")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action.Kind != ActionGotoMenu || action.Target != "games" {
		t.Fatalf("Resolve(gam) = %+v, want goto games", action)
	}
}

func TestResolveShowMessage(t *testing.T) {
	nav := testNavigator(t)

	action, err := nav.Resolve("main", "about")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action.Kind != ActionShowInfo || action.Message != "A small BBS." {
		t.Fatalf("Resolve(about) = %+v", action)
	}
}

func TestResolveUnknownInput(t *testing.T) {
	nav := testNavigator(t)

	_, err := nav.Resolve("main", "xyzzy")
	var navErr *NavigationError
	if !errors.As(err, &navErr) {
		t.Fatalf("Resolve() error = %v, want NavigationError", err)
	}
	if navErr.Input != "xyzzy" {
		t.Fatalf("NavigationError.Input = %q", navErr.Input)
	}
	if !strings.Contains(navErr.Guidance, "1. Games") {
		t.Fatalf("Guidance should re-render the menu:\n%s", navErr.Guidance)
	}
}

func TestResolveDisabledOptionNotSelectable(t *testing.T) {
	nav := testNavigator(t)

	_, err := nav.Resolve("games", "2")
	var navErr *NavigationError
	if !errors.As(err, &navErr) {
		t.Fatalf("disabled option resolved, error = %v", err)
	}
}

func TestResolveUnknownMenuFallsBackToRoot(t *testing.T) {
	nav := testNavigator(t)

	// A session can point at a menu removed by a config reload.
	action, err := nav.Resolve("deleted_menu", "1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if action.Target != "games" {
		t.Fatalf("fallback resolve = %+v, want root menu option", action)
	}
}
