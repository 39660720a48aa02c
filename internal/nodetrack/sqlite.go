package nodetrack

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists node and admin records in a local SQLite file, the
// bounded-latency storage the dispatch path assumes.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids SQLITE_BUSY
	// churn at the low message rates a mesh link produces.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mesh_nodes (
			node_id TEXT PRIMARY KEY,
			node_name TEXT NOT NULL,
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mesh_nodes_last_seen ON mesh_nodes(last_seen_at)`,
		`CREATE TABLE IF NOT EXISTS admin_nodes (
			node_id TEXT PRIMARY KEY,
			node_name TEXT NOT NULL,
			registration_method TEXT NOT NULL,
			registered_at INTEGER NOT NULL,
			last_notification_at INTEGER,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_nodes_active ON admin_nodes(is_active)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *SQLiteStore) RecordNodeActivity(ctx context.Context, identity, displayName string, now time.Time) (time.Time, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("begin node upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var priorMs int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_seen_at FROM mesh_nodes WHERE node_id = ?`, identity).Scan(&priorMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mesh_nodes (node_id, node_name, first_seen_at, last_seen_at, message_count)
			 VALUES (?, ?, ?, ?, 1)`,
			identity, displayName, toMillis(now), toMillis(now))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("insert node: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return time.Time{}, false, fmt.Errorf("commit node insert: %w", err)
		}
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("read node: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE mesh_nodes
		 SET node_name = ?, last_seen_at = ?, message_count = message_count + 1
		 WHERE node_id = ?`,
		displayName, toMillis(now), identity)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("update node: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, false, fmt.Errorf("commit node update: %w", err)
	}
	return fromMillis(priorMs), true, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, identity string) (NodeRecord, error) {
	var rec NodeRecord
	var first, last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT node_id, node_name, first_seen_at, last_seen_at, message_count
		 FROM mesh_nodes WHERE node_id = ?`, identity).
		Scan(&rec.Identity, &rec.DisplayName, &first, &last, &rec.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return NodeRecord{}, ErrNodeNotFound
	}
	if err != nil {
		return NodeRecord{}, fmt.Errorf("get node: %w", err)
	}
	rec.FirstSeen = fromMillis(first)
	rec.LastSeen = fromMillis(last)
	return rec, nil
}

func (s *SQLiteStore) ListNodes(ctx context.Context, limit int) ([]NodeRecord, error) {
	query := `SELECT node_id, node_name, first_seen_at, last_seen_at, message_count
		 FROM mesh_nodes ORDER BY last_seen_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeRecord
	for rows.Next() {
		var rec NodeRecord
		var first, last int64
		if err := rows.Scan(&rec.Identity, &rec.DisplayName, &first, &last, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		rec.FirstSeen = fromMillis(first)
		rec.LastSeen = fromMillis(last)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mesh_nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) SetNodeLastSeen(ctx context.Context, identity string, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mesh_nodes SET last_seen_at = ? WHERE node_id = ?`,
		toMillis(lastSeen), identity)
	if err != nil {
		return fmt.Errorf("set node last seen: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *SQLiteStore) PurgeNodes(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mesh_nodes WHERE last_seen_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge nodes: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) UpsertAdmin(ctx context.Context, rec AdminRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_nodes (node_id, node_name, registration_method, registered_at, is_active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(node_id) DO UPDATE SET
			node_name = CASE WHEN excluded.node_name != '' THEN excluded.node_name ELSE node_name END,
			registration_method = excluded.registration_method,
			registered_at = excluded.registered_at,
			is_active = 1`,
		rec.Identity, rec.DisplayName, rec.Method, toMillis(rec.RegisteredAt))
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listAdmins(ctx context.Context, activeOnly bool) ([]AdminRecord, error) {
	query := `SELECT node_id, node_name, registration_method, registered_at, last_notification_at, is_active
		 FROM admin_nodes`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY registered_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []AdminRecord
	for rows.Next() {
		var rec AdminRecord
		var registered int64
		var notified sql.NullInt64
		var active int
		if err := rows.Scan(&rec.Identity, &rec.DisplayName, &rec.Method, &registered, &notified, &active); err != nil {
			return nil, fmt.Errorf("scan admin row: %w", err)
		}
		rec.RegisteredAt = fromMillis(registered)
		if notified.Valid {
			rec.LastNotified = fromMillis(notified.Int64)
		}
		rec.Active = active != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListActiveAdmins(ctx context.Context) ([]AdminRecord, error) {
	return s.listAdmins(ctx, true)
}

func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]AdminRecord, error) {
	return s.listAdmins(ctx, false)
}

func (s *SQLiteStore) SetAdminActive(ctx context.Context, identity string, active bool) error {
	val := 0
	if active {
		val = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_nodes SET is_active = ? WHERE node_id = ?`, val, identity)
	if err != nil {
		return fmt.Errorf("set admin active: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *SQLiteStore) RemoveAdmin(ctx context.Context, identity string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM admin_nodes WHERE node_id = ?`, identity)
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *SQLiteStore) TouchAdminNotified(ctx context.Context, identity string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_nodes SET last_notification_at = ? WHERE node_id = ?`,
		toMillis(now), identity)
	if err != nil {
		return fmt.Errorf("touch admin notified: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
