package nodetrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists node and admin records in PostgreSQL, for
// deployments where several gateways share one presence database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mesh_nodes (
			node_id TEXT PRIMARY KEY,
			node_name TEXT NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mesh_nodes_last_seen ON mesh_nodes (last_seen_at);`,
		`CREATE TABLE IF NOT EXISTS admin_nodes (
			node_id TEXT PRIMARY KEY,
			node_name TEXT NOT NULL,
			registration_method TEXT NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL,
			last_notification_at TIMESTAMPTZ,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_admin_nodes_active ON admin_nodes (is_active);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) RecordNodeActivity(ctx context.Context, identity, displayName string, now time.Time) (time.Time, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("begin node upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prior time.Time
	err = tx.QueryRow(ctx,
		`SELECT last_seen_at FROM mesh_nodes WHERE node_id = $1 FOR UPDATE`, identity).Scan(&prior)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO mesh_nodes (node_id, node_name, first_seen_at, last_seen_at, message_count)
			 VALUES ($1, $2, $3, $3, 1)
			 ON CONFLICT (node_id) DO NOTHING`,
			identity, displayName, now)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("insert node: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return time.Time{}, false, fmt.Errorf("commit node insert: %w", err)
		}
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("read node: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE mesh_nodes
		 SET node_name = $1, last_seen_at = $2, message_count = message_count + 1
		 WHERE node_id = $3`,
		displayName, now, identity)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("update node: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, false, fmt.Errorf("commit node update: %w", err)
	}
	return prior.UTC(), true, nil
}

func (s *PostgresStore) GetNode(ctx context.Context, identity string) (NodeRecord, error) {
	var rec NodeRecord
	err := s.pool.QueryRow(ctx,
		`SELECT node_id, node_name, first_seen_at, last_seen_at, message_count
		 FROM mesh_nodes WHERE node_id = $1`, identity).
		Scan(&rec.Identity, &rec.DisplayName, &rec.FirstSeen, &rec.LastSeen, &rec.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return NodeRecord{}, ErrNodeNotFound
	}
	if err != nil {
		return NodeRecord{}, fmt.Errorf("get node: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListNodes(ctx context.Context, limit int) ([]NodeRecord, error) {
	query := `SELECT node_id, node_name, first_seen_at, last_seen_at, message_count
		 FROM mesh_nodes ORDER BY last_seen_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeRecord
	for rows.Next() {
		var rec NodeRecord
		if err := rows.Scan(&rec.Identity, &rec.DisplayName, &rec.FirstSeen, &rec.LastSeen, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mesh_nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SetNodeLastSeen(ctx context.Context, identity string, lastSeen time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mesh_nodes SET last_seen_at = $1 WHERE node_id = $2`, lastSeen, identity)
	if err != nil {
		return fmt.Errorf("set node last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeNodes(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mesh_nodes WHERE last_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge nodes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertAdmin(ctx context.Context, rec AdminRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_nodes (node_id, node_name, registration_method, registered_at, is_active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (node_id) DO UPDATE SET
			node_name = CASE WHEN EXCLUDED.node_name != '' THEN EXCLUDED.node_name ELSE admin_nodes.node_name END,
			registration_method = EXCLUDED.registration_method,
			registered_at = EXCLUDED.registered_at,
			is_active = TRUE`,
		rec.Identity, rec.DisplayName, rec.Method, rec.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	return nil
}

func (s *PostgresStore) listAdmins(ctx context.Context, activeOnly bool) ([]AdminRecord, error) {
	query := `SELECT node_id, node_name, registration_method, registered_at, last_notification_at, is_active
		 FROM admin_nodes`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY registered_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []AdminRecord
	for rows.Next() {
		var rec AdminRecord
		var notified *time.Time
		if err := rows.Scan(&rec.Identity, &rec.DisplayName, &rec.Method, &rec.RegisteredAt, &notified, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan admin row: %w", err)
		}
		if notified != nil {
			rec.LastNotified = notified.UTC()
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveAdmins(ctx context.Context) ([]AdminRecord, error) {
	return s.listAdmins(ctx, true)
}

func (s *PostgresStore) ListAdmins(ctx context.Context) ([]AdminRecord, error) {
	return s.listAdmins(ctx, false)
}

func (s *PostgresStore) SetAdminActive(ctx context.Context, identity string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE admin_nodes SET is_active = $1 WHERE node_id = $2`, active, identity)
	if err != nil {
		return fmt.Errorf("set admin active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveAdmin(ctx context.Context, identity string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM admin_nodes WHERE node_id = $1`, identity)
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *PostgresStore) TouchAdminNotified(ctx context.Context, identity string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE admin_nodes SET last_notification_at = $1 WHERE node_id = $2`, now, identity)
	if err != nil {
		return fmt.Errorf("touch admin notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
