package sqlitetracking

import (
	"context"
	"database/sql"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

// ListEvents returns the package history newest-first.
func (s *Storage) ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, package_id, event_time, location, description, status_code, created_at
FROM tracking_events
WHERE package_id = ?
ORDER BY id DESC
`, packageID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := make([]*models.TrackingEvent, 0)
	for rows.Next() {
		var e models.TrackingEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.PackageID, &e.Timestamp, &e.Location, &e.Description, &e.StatusCode, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyUpdate writes one reconciliation result in a single transaction and
// returns how many events were actually new.
func (s *Storage) ApplyUpdate(ctx context.Context, upd models.PackageUpdate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	checkedAt := formatTime(upd.CheckedAt)

	inserted := 0
	// oldest first, so that id order equals newest-first on read
	for i := len(upd.Events) - 1; i >= 0; i-- {
		e := upd.Events[i]
		res, err := tx.ExecContext(ctx, `
INSERT INTO tracking_events (package_id, event_time, location, description, status_code, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (package_id, event_time, location, description) DO NOTHING
`, upd.PackageID, e.Timestamp, e.Location, e.Description, e.StatusCode, now)
		if err != nil {
			return 0, errors.Wrap(err, "insert tracking event")
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	var lastEvent, lastEventAt sql.NullString
	if upd.LastEvent != nil {
		lastEvent = sql.NullString{String: upd.LastEvent.Description, Valid: true}
		lastEventAt = sql.NullString{String: upd.LastEvent.Timestamp, Valid: true}
	}
	var deliveredAt sql.NullString
	if upd.Deactivate && upd.Status == models.StatusDelivered {
		deliveredAt = sql.NullString{String: checkedAt, Valid: true}
	}
	deactivate := 0
	if upd.Deactivate {
		deactivate = 1
	}

	res, err := tx.ExecContext(ctx, `
UPDATE packages
SET
  status = ?,
  status_code = ?,
  last_checked_at = CASE WHEN last_checked_at IS NULL OR last_checked_at < ? THEN ? ELSE last_checked_at END,
  last_event = COALESCE(?, last_event),
  last_event_at = COALESCE(?, last_event_at),
  active = CASE WHEN ? = 1 THEN 0 ELSE active END,
  delivered_at = COALESCE(delivered_at, ?),
  updated_at = ?
WHERE id = ?
`, upd.Status, upd.StatusCode, checkedAt, checkedAt, lastEvent, lastEventAt,
		deactivate, deliveredAt, now, upd.PackageID)
	if err != nil {
		return 0, errors.Wrap(err, "update package")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, errors.Wrapf(models.ErrPackageNotFound, "id %d", upd.PackageID)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}
