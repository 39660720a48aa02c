package nodetrack

import (
	"context"
	"crypto/subtle"
	"log"
	"strings"
	"time"

	"github.com/bbmesh/bbmesh/internal/mesh"
)

// Notifier owns the admin set and fans out new-node notifications over the
// mesh link.
type Notifier struct {
	store      Store
	sender     mesh.Sender
	format     string
	adminKey   string
	keyEnabled bool
}

func NewNotifier(store Store, sender mesh.Sender, format, adminKey string, keyEnabled bool) *Notifier {
	if strings.TrimSpace(format) == "" {
		format = "New node: {node_name} ({node_id})"
	}
	return &Notifier{
		store:      store,
		sender:     sender,
		format:     format,
		adminKey:   adminKey,
		keyEnabled: keyEnabled,
	}
}

// RegisterStatic loads the configured permanent admin set. Idempotent:
// reloading the same list on every start never duplicates records.
func (n *Notifier) RegisterStatic(ctx context.Context, identities []string, now time.Time) error {
	for _, id := range identities {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		rec := AdminRecord{
			Identity:     id,
			DisplayName:  "Config Admin",
			Method:       MethodStatic,
			RegisteredAt: now,
			Active:       true,
		}
		if err := n.store.UpsertAdmin(ctx, rec); err != nil {
			return err
		}
		log.Printf("nodetrack: registered config admin %s", id)
	}
	return nil
}

// RegisterDynamic registers an admin through the pre-shared key. The key
// comparison is constant time, and a failure reports nothing about how
// close the attempt was.
func (n *Notifier) RegisterDynamic(ctx context.Context, identity, displayName, providedKey string, now time.Time) bool {
	if !n.keyEnabled || n.adminKey == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(providedKey), []byte(n.adminKey)) != 1 {
		log.Printf("nodetrack: rejected admin registration from %s", identity)
		return false
	}

	rec := AdminRecord{
		Identity:     identity,
		DisplayName:  displayName,
		Method:       MethodDynamic,
		RegisteredAt: now,
		Active:       true,
	}
	if err := n.store.UpsertAdmin(ctx, rec); err != nil {
		log.Printf("nodetrack: admin registration store error for %s: %v", identity, err)
		return false
	}
	log.Printf("nodetrack: registered admin via key: %s (%s)", displayName, identity)
	return true
}

// NotifyNewNode sends the templated notification to every active admin as
// a direct message. One admin's delivery failure never blocks the rest.
// Returns the number of successful sends.
func (n *Notifier) NotifyNewNode(ctx context.Context, identity, displayName string, now time.Time) int {
	admins, err := n.store.ListActiveAdmins(ctx)
	if err != nil {
		log.Printf("nodetrack: list admins failed: %v", err)
		return 0
	}
	if len(admins) == 0 {
		return 0
	}

	text := strings.NewReplacer(
		"{node_name}", displayName,
		"{node_id}", identity,
	).Replace(n.format)

	sent := 0
	for _, admin := range admins {
		if err := n.sender.Send(text, 0, admin.Identity); err != nil {
			log.Printf("nodetrack: notify admin %s failed: %v", admin.Identity, err)
			continue
		}
		sent++
		if err := n.store.TouchAdminNotified(ctx, admin.Identity, now); err != nil {
			log.Printf("nodetrack: record notification for %s failed: %v", admin.Identity, err)
		}
	}
	log.Printf("nodetrack: notified %d/%d admins about %s (%s)", sent, len(admins), displayName, identity)
	return sent
}

// Deactivate turns an admin off without deleting the record.
func (n *Notifier) Deactivate(ctx context.Context, identity string) error {
	return n.store.SetAdminActive(ctx, identity, false)
}

// Activate re-enables a deactivated admin.
func (n *Notifier) Activate(ctx context.Context, identity string) error {
	return n.store.SetAdminActive(ctx, identity, true)
}

// Remove deletes an admin record entirely.
func (n *Notifier) Remove(ctx context.Context, identity string) error {
	return n.store.RemoveAdmin(ctx, identity)
}
