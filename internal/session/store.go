package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the dispatch-visible lifecycle of a session.
type State string

const (
	// StateMenu means input is interpreted against the current menu.
	StateMenu State = "menu"
	// StatePlugin means an interactive plugin owns every inbound message
	// until it releases the session or faults.
	StatePlugin State = "plugin"
)

var ErrNotFound = errors.New("session not found")

// Session is the per-identity conversational state. A session is either
// menu-browsing (ActivePlugin empty) or plugin-owned (ActivePlugin names
// exactly one plugin); the two are never combined.
type Session struct {
	Identity     string         `json:"identity"`
	DisplayName  string         `json:"display_name"`
	Channel      int            `json:"channel"`
	CurrentMenu  string         `json:"current_menu"`
	MenuHistory  []string       `json:"menu_history"`
	ActivePlugin string         `json:"active_plugin"`
	PluginState  map[string]any `json:"plugin_state,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	LastActivity time.Time      `json:"last_activity"`
	MessageCount int            `json:"message_count"`
}

// State derives the lifecycle state from the plugin marker.
func (s *Session) State() State {
	if s.ActivePlugin != "" {
		return StatePlugin
	}
	return StateMenu
}

// PushMenu moves to a menu, remembering the previous one for "back".
func (s *Session) PushMenu(name string) {
	s.MenuHistory = append(s.MenuHistory, s.CurrentMenu)
	s.CurrentMenu = name
}

// PopMenu returns to the previous menu. On empty history it stays put and
// reports false.
func (s *Session) PopMenu() bool {
	if len(s.MenuHistory) == 0 {
		return false
	}
	s.CurrentMenu = s.MenuHistory[len(s.MenuHistory)-1]
	s.MenuHistory = s.MenuHistory[:len(s.MenuHistory)-1]
	return true
}

// GoHome jumps to the root menu and clears history.
func (s *Session) GoHome(root string) {
	s.CurrentMenu = root
	s.MenuHistory = nil
}

// EnterPlugin hands the session to an interactive plugin.
func (s *Session) EnterPlugin(name string, state map[string]any) {
	s.ActivePlugin = name
	s.PluginState = state
}

// LeavePlugin returns the session to menu browsing at its current menu.
func (s *Session) LeavePlugin() {
	s.ActivePlugin = ""
	s.PluginState = nil
}

// Store holds one session per identity key and owns their lifetime.
// All mutation goes through the store lock, so the janitor sweep can never
// evict a session halfway through a dispatch mutation.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	rootMenu string
	onExpire func(Session)
	now      func() time.Time
}

func NewStore(ttl time.Duration, rootMenu string) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if rootMenu == "" {
		rootMenu = "main"
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		rootMenu: rootMenu,
		now:      time.Now,
	}
}

// SetExpireHook registers a callback invoked (outside the lock) with a copy
// of each evicted session.
func (st *Store) SetExpireHook(hook func(Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onExpire = hook
}

// Key builds the session key. Sessions are scoped per identity and channel:
// the same radio talking on two channels holds two independent sessions.
func Key(identity string, channel int) string {
	return fmt.Sprintf("%s:%d", identity, channel)
}

// GetOrCreate returns the session for the key, creating a fresh one at the
// root menu on first contact. The bool reports whether it was created.
func (st *Store) GetOrCreate(identity, displayName string, channel int) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := Key(identity, channel)
	if s, ok := st.sessions[key]; ok {
		return *s, false
	}

	now := st.now().UTC()
	s := &Session{
		Identity:     identity,
		DisplayName:  displayName,
		Channel:      channel,
		CurrentMenu:  st.rootMenu,
		StartedAt:    now,
		LastActivity: now,
	}
	st.sessions[key] = s
	return *s, true
}

// Update applies fn to the stored session under the store lock and stamps
// activity. This is the only mutation path, which serializes dispatch
// writes against the eviction sweep.
func (st *Store) Update(identity string, channel int, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[Key(identity, channel)]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	s.LastActivity = st.now().UTC()
	return nil
}

// Get returns a copy of the session, if present.
func (st *Store) Get(identity string, channel int) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[Key(identity, channel)]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// List returns copies of all live sessions.
func (st *Store) List() []Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, *s)
	}
	return out
}

// Count reports the number of live sessions.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// EvictExpired removes sessions idle longer than the TTL and returns copies
// of the evicted ones. The expire hook fires after the lock is released.
func (st *Store) EvictExpired(now time.Time) []Session {
	var expired []Session

	st.mu.Lock()
	for key, s := range st.sessions {
		if now.Sub(s.LastActivity) < st.ttl {
			continue
		}
		expired = append(expired, *s)
		delete(st.sessions, key)
	}
	hook := st.onExpire
	st.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	return expired
}

// StartJanitor runs the periodic eviction sweep until ctx is cancelled.
// onSweep, if set, runs after each sweep with the evicted sessions (used
// for logging and to piggyback rate-limiter purges).
func (st *Store) StartJanitor(ctx context.Context, interval time.Duration, onSweep func([]Session)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := st.EvictExpired(st.now().UTC())
				if onSweep != nil {
					onSweep(evicted)
				}
			}
		}
	}()
}
