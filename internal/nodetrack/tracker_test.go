package nodetrack

import (
	"context"
	"testing"
	"time"
)

func TestTrackerFirstContactIsNew(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	isNew, err := tr.RecordActivity(context.Background(), "!a1b2", "Alice", now)
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !isNew {
		t.Fatalf("first contact should be new")
	}

	rec, err := store.GetNode(context.Background(), "!a1b2")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if rec.MessageCount != 1 || !rec.LastSeen.Equal(now) {
		t.Fatalf("record = %+v", rec)
	}
}

func TestTrackerRecentNodeNotNew(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	tr.RecordActivity(context.Background(), "!a1b2", "Alice", now)
	isNew, err := tr.RecordActivity(context.Background(), "!a1b2", "Alice", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if isNew {
		t.Fatalf("node seen an hour ago must not be new")
	}
}

func TestTrackerLongAbsentNodeIsNewAgain(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	tr.RecordActivity(context.Background(), "!a1b2", "Alice", now)
	isNew, err := tr.RecordActivity(context.Background(), "!a1b2", "Alice", now.Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !isNew {
		t.Fatalf("node absent past the threshold should read as new")
	}
}

func TestTrackerThresholdComparesPriorLastSeen(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	tr.RecordActivity(context.Background(), "!a1b2", "Alice", now)

	// Two quick messages right after the threshold: only the first may
	// trigger, because the second compares against the refreshed last-seen.
	late := now.Add(30 * 24 * time.Hour)
	first, _ := tr.RecordActivity(context.Background(), "!a1b2", "Alice", late)
	second, _ := tr.RecordActivity(context.Background(), "!a1b2", "Alice", late.Add(time.Second))
	if !first {
		t.Fatalf("first message past threshold should be new")
	}
	if second {
		t.Fatalf("second message must compare against the prior update")
	}
}

func TestTrackerEmptyIdentityIgnored(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), time.Hour)
	isNew, err := tr.RecordActivity(context.Background(), "", "ghost", time.Now())
	if err != nil || isNew {
		t.Fatalf("empty identity: isNew=%v err=%v", isNew, err)
	}
}

func TestTrackerReset(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	tr.RecordActivity(context.Background(), "!a1b2", "Alice", now)
	if err := tr.Reset(context.Background(), "!a1b2", now); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	isNew, err := tr.RecordActivity(context.Background(), "!a1b2", "Alice", now.Add(time.Second))
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if !isNew {
		t.Fatalf("node should read as new after a reset")
	}
}

func TestTrackerPurge(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 30*24*time.Hour)
	now := time.Now().UTC()

	tr.RecordActivity(context.Background(), "!old", "Old", now.Add(-400*24*time.Hour))
	tr.RecordActivity(context.Background(), "!fresh", "Fresh", now)

	removed, err := tr.Purge(context.Background(), 365*24*time.Hour, now)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Purge() removed %d, want 1", removed)
	}
	if _, err := store.GetNode(context.Background(), "!fresh"); err != nil {
		t.Fatalf("fresh node should survive the purge: %v", err)
	}
}
