package nodetrack

import (
	"context"
	"log"
	"time"
)

// Tracker decides whether a sender counts as a new (or long-absent) node.
type Tracker struct {
	store     Store
	threshold time.Duration
}

func NewTracker(store Store, threshold time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = 30 * 24 * time.Hour
	}
	return &Tracker{store: store, threshold: threshold}
}

// RecordActivity upserts presence for one inbound message and reports
// whether the sender is new: never seen before, or last seen at least the
// threshold ago. The comparison uses the last-seen value from before this
// message, which the store reads and updates atomically.
func (t *Tracker) RecordActivity(ctx context.Context, identity, displayName string, now time.Time) (bool, error) {
	if identity == "" {
		return false, nil
	}

	prior, existed, err := t.store.RecordNodeActivity(ctx, identity, displayName, now)
	if err != nil {
		return false, err
	}
	if !existed {
		log.Printf("nodetrack: new node %s (%s)", displayName, identity)
		return true, nil
	}

	if now.Sub(prior) >= t.threshold {
		log.Printf("nodetrack: returning node %s (%s), last seen %s ago", displayName, identity, now.Sub(prior).Round(time.Second))
		return true, nil
	}
	return false, nil
}

// Reset pushes a node's last-seen beyond the threshold so its next message
// reads as new again.
func (t *Tracker) Reset(ctx context.Context, identity string, now time.Time) error {
	return t.store.SetNodeLastSeen(ctx, identity, now.Add(-t.threshold-24*time.Hour))
}

// Purge deletes nodes idle longer than the retention window.
func (t *Tracker) Purge(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	return t.store.PurgeNodes(ctx, now.Add(-retention))
}
