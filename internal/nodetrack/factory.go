package nodetrack

import (
	"context"
	"fmt"
)

// NewStore selects a backend by driver name: "sqlite" (local file, the
// default), "postgres" (shared deployment), or "memory" (tests, or
// tracking disabled).
func NewStore(ctx context.Context, driver, path, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown node store driver %q", driver)
	}
}
