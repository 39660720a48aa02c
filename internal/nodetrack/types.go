package nodetrack

import (
	"context"
	"errors"
	"time"
)

// Registration methods for admin records.
const (
	MethodStatic  = "config"
	MethodDynamic = "psk"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrAdminNotFound = errors.New("admin not found")
)

// NodeRecord is the persisted presence record for one sender identity.
type NodeRecord struct {
	Identity     string    `json:"identity"`
	DisplayName  string    `json:"display_name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int       `json:"message_count"`
}

// AdminRecord is one identity authorized to receive presence notifications.
type AdminRecord struct {
	Identity     string    `json:"identity"`
	DisplayName  string    `json:"display_name"`
	Method       string    `json:"registration_method"`
	RegisteredAt time.Time `json:"registered_at"`
	LastNotified time.Time `json:"last_notified"`
	Active       bool      `json:"active"`
}

// Store persists node presence and admin registration. Three
// implementations: sqlite (default local file), postgres, and in-memory.
type Store interface {
	// RecordNodeActivity upserts the node's presence for one inbound
	// message: insert on first contact, otherwise bump last-seen and the
	// message count. It returns the last-seen value from before this
	// update; the read and the write are atomic per identity, so two
	// concurrent messages cannot both observe the stale timestamp.
	RecordNodeActivity(ctx context.Context, identity, displayName string, now time.Time) (prior time.Time, existed bool, err error)

	GetNode(ctx context.Context, identity string) (NodeRecord, error)
	ListNodes(ctx context.Context, limit int) ([]NodeRecord, error)
	CountNodes(ctx context.Context) (int, error)

	// SetNodeLastSeen overwrites last-seen; Tracker.Reset uses it to push
	// a node far enough into the past to read as new again.
	SetNodeLastSeen(ctx context.Context, identity string, lastSeen time.Time) error

	// PurgeNodes deletes records whose last-seen is before cutoff and
	// reports how many were removed.
	PurgeNodes(ctx context.Context, cutoff time.Time) (int, error)

	// UpsertAdmin inserts or refreshes an admin record; registering the
	// same identity twice never duplicates it.
	UpsertAdmin(ctx context.Context, rec AdminRecord) error

	ListActiveAdmins(ctx context.Context) ([]AdminRecord, error)
	ListAdmins(ctx context.Context) ([]AdminRecord, error)
	SetAdminActive(ctx context.Context, identity string, active bool) error
	RemoveAdmin(ctx context.Context, identity string) error
	TouchAdminNotified(ctx context.Context, identity string, now time.Time) error

	Close() error
}
