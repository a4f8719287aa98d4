package sqlitetracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS packages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tracking_number TEXT NOT NULL UNIQUE,
  carrier TEXT NOT NULL DEFAULT '',
  carrier_code INTEGER NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  status_code INTEGER NULL,
  active INTEGER NOT NULL DEFAULT 1,
  last_event TEXT NOT NULL DEFAULT '',
  last_event_at TEXT NOT NULL DEFAULT '',
  last_checked_at TEXT NULL,
  delivered_at TEXT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_packages_active ON packages(active)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
  event_time TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  status_code INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
)`,
		// Event identity is the (time, location, description) tuple per package.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_events_dedup ON tracking_events(package_id, event_time, location, description)`,
		`
CREATE TABLE IF NOT EXISTS api_usage (
  month TEXT PRIMARY KEY,
  registrations_used INTEGER NOT NULL DEFAULT 0 CHECK (registrations_used >= 0),
  quota_total INTEGER NOT NULL,
  updated_at TEXT NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
