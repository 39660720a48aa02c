package nodetrack

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used by tests and when node
// tracking runs without persistence.
type MemoryStore struct {
	mu     sync.Mutex
	nodes  map[string]*NodeRecord
	admins map[string]*AdminRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[string]*NodeRecord),
		admins: make(map[string]*AdminRecord),
	}
}

func (s *MemoryStore) RecordNodeActivity(_ context.Context, identity, displayName string, now time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[identity]; ok {
		prior := n.LastSeen
		n.DisplayName = displayName
		n.LastSeen = now
		n.MessageCount++
		return prior, true, nil
	}

	s.nodes[identity] = &NodeRecord{
		Identity:     identity,
		DisplayName:  displayName,
		FirstSeen:    now,
		LastSeen:     now,
		MessageCount: 1,
	}
	return time.Time{}, false, nil
}

func (s *MemoryStore) GetNode(_ context.Context, identity string) (NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[identity]
	if !ok {
		return NodeRecord{}, ErrNodeNotFound
	}
	return *n, nil
}

func (s *MemoryStore) ListNodes(_ context.Context, limit int) ([]NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NodeRecord, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountNodes(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes), nil
}

func (s *MemoryStore) SetNodeLastSeen(_ context.Context, identity string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[identity]
	if !ok {
		return ErrNodeNotFound
	}
	n.LastSeen = lastSeen
	return nil
}

func (s *MemoryStore) PurgeNodes(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, n := range s.nodes {
		if n.LastSeen.Before(cutoff) {
			delete(s.nodes, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) UpsertAdmin(_ context.Context, rec AdminRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.admins[rec.Identity]; ok {
		if rec.DisplayName != "" {
			a.DisplayName = rec.DisplayName
		}
		a.Method = rec.Method
		a.RegisteredAt = rec.RegisteredAt
		a.Active = true
		return nil
	}
	cp := rec
	cp.Active = true
	s.admins[rec.Identity] = &cp
	return nil
}

func (s *MemoryStore) ListActiveAdmins(ctx context.Context) ([]AdminRecord, error) {
	all, _ := s.ListAdmins(ctx)
	out := all[:0]
	for _, a := range all {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAdmins(context.Context) ([]AdminRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AdminRecord, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

func (s *MemoryStore) SetAdminActive(_ context.Context, identity string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[identity]
	if !ok {
		return ErrAdminNotFound
	}
	a.Active = active
	return nil
}

func (s *MemoryStore) RemoveAdmin(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[identity]; !ok {
		return ErrAdminNotFound
	}
	delete(s.admins, identity)
	return nil
}

func (s *MemoryStore) TouchAdminNotified(_ context.Context, identity string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[identity]
	if !ok {
		return ErrAdminNotFound
	}
	a.LastNotified = now
	return nil
}

func (s *MemoryStore) Close() error { return nil }
