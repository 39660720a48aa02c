package session

import (
	"testing"
	"time"
)

func TestGetOrCreateStartsAtRoot(t *testing.T) {
	st := NewStore(5*time.Minute, "main")

	s, created := st.GetOrCreate("!a1b2", "Alice", 0)
	if !created {
		t.Fatalf("first contact should create a session")
	}
	if s.CurrentMenu != "main" {
		t.Fatalf("CurrentMenu = %q, want main", s.CurrentMenu)
	}
	if s.State() != StateMenu {
		t.Fatalf("State() = %q, want %q", s.State(), StateMenu)
	}

	again, created := st.GetOrCreate("!a1b2", "Alice", 0)
	if created {
		t.Fatalf("second contact should reuse the session")
	}
	if again.Identity != "!a1b2" {
		t.Fatalf("Identity = %q", again.Identity)
	}
}

func TestSessionsScopedByChannel(t *testing.T) {
	st := NewStore(5*time.Minute, "main")

	st.GetOrCreate("!a1b2", "Alice", 0)
	_, created := st.GetOrCreate("!a1b2", "Alice", 1)
	if !created {
		t.Fatalf("same identity on another channel should get its own session")
	}
	if st.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", st.Count())
	}
}

func TestMenuHistory(t *testing.T) {
	s := &Session{CurrentMenu: "main"}

	s.PushMenu("games")
	s.PushMenu("trivia")
	if s.CurrentMenu != "trivia" {
		t.Fatalf("CurrentMenu = %q, want trivia", s.CurrentMenu)
	}

	if !s.PopMenu() {
		t.Fatalf("PopMenu() = false with history present")
	}
	if s.CurrentMenu != "games" {
		t.Fatalf("CurrentMenu = %q, want games", s.CurrentMenu)
	}

	s.GoHome("main")
	if s.CurrentMenu != "main" || len(s.MenuHistory) != 0 {
		t.Fatalf("GoHome left state %q / %v", s.CurrentMenu, s.MenuHistory)
	}
	if s.PopMenu() {
		t.Fatalf("PopMenu() = true on empty history")
	}
	if s.CurrentMenu != "main" {
		t.Fatalf("empty-history pop moved the menu to %q", s.CurrentMenu)
	}
}

func TestPluginMarker(t *testing.T) {
	s := &Session{CurrentMenu: "games"}
	s.EnterPlugin("number_guess", map[string]any{"target": 42})
	if s.State() != StatePlugin {
		t.Fatalf("State() = %q, want %q", s.State(), StatePlugin)
	}
	s.LeavePlugin()
	if s.State() != StateMenu || s.PluginState != nil {
		t.Fatalf("LeavePlugin left marker %q state %v", s.ActivePlugin, s.PluginState)
	}
	if s.CurrentMenu != "games" {
		t.Fatalf("leaving a plugin must not move the menu, got %q", s.CurrentMenu)
	}
}

func TestUpdateStampsActivity(t *testing.T) {
	st := NewStore(5*time.Minute, "main")
	base := time.Now().UTC()
	st.now = func() time.Time { return base }

	st.GetOrCreate("!a1b2", "Alice", 0)

	base = base.Add(time.Minute)
	err := st.Update("!a1b2", 0, func(s *Session) { s.MessageCount++ })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := st.Get("!a1b2", 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.LastActivity.Equal(base) {
		t.Fatalf("LastActivity = %v, want %v", got.LastActivity, base)
	}
	if got.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1", got.MessageCount)
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	st := NewStore(5*time.Minute, "main")
	if err := st.Update("!nope", 0, func(*Session) {}); err != ErrNotFound {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestEvictExpired(t *testing.T) {
	st := NewStore(time.Minute, "main")
	base := time.Now().UTC()
	st.now = func() time.Time { return base }

	st.GetOrCreate("!old", "Old", 0)
	base = base.Add(2 * time.Minute)
	st.GetOrCreate("!fresh", "Fresh", 0)

	var hooked []Session
	st.SetExpireHook(func(s Session) { hooked = append(hooked, s) })

	evicted := st.EvictExpired(base)
	if len(evicted) != 1 || evicted[0].Identity != "!old" {
		t.Fatalf("EvictExpired() = %+v, want just !old", evicted)
	}
	if len(hooked) != 1 || hooked[0].Identity != "!old" {
		t.Fatalf("expire hook saw %+v", hooked)
	}
	if st.Count() != 1 {
		t.Fatalf("Count() = %d after eviction, want 1", st.Count())
	}

	// Expired user comes back as a brand new session at the root menu.
	s, created := st.GetOrCreate("!old", "Old", 0)
	if !created || s.CurrentMenu != "main" {
		t.Fatalf("post-eviction contact: created=%v menu=%q", created, s.CurrentMenu)
	}
}
