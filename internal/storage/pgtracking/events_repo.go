package pgtracking

import (
	"context"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, package_id, event_time, location, description, status_code, created_at
FROM tracking_events
WHERE package_id = $1
ORDER BY id DESC
`, packageID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := make([]*models.TrackingEvent, 0)
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(&e.ID, &e.PackageID, &e.Timestamp, &e.Location, &e.Description, &e.StatusCode, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ApplyUpdate(ctx context.Context, upd models.PackageUpdate) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for i := len(upd.Events) - 1; i >= 0; i-- {
		e := upd.Events[i]
		tag, err := tx.Exec(ctx, `
INSERT INTO tracking_events (package_id, event_time, location, description, status_code, created_at)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (package_id, event_time, location, description) DO NOTHING
`, upd.PackageID, e.Timestamp, e.Location, e.Description, e.StatusCode)
		if err != nil {
			return 0, wrapErr(err, "insert tracking event")
		}
		inserted += int(tag.RowsAffected())
	}

	var lastEvent, lastEventAt *string
	if upd.LastEvent != nil {
		lastEvent, lastEventAt = &upd.LastEvent.Description, &upd.LastEvent.Timestamp
	}
	checkedAt := upd.CheckedAt.UTC()
	markDelivered := upd.Deactivate && upd.Status == models.StatusDelivered

	tag, err := tx.Exec(ctx, `
UPDATE packages
SET
  status = $2,
  status_code = $3,
  last_checked_at = GREATEST(COALESCE(last_checked_at, $4), $4),
  last_event = COALESCE($5, last_event),
  last_event_at = COALESCE($6, last_event_at),
  active = CASE WHEN $7 THEN FALSE ELSE active END,
  delivered_at = CASE WHEN $8 THEN COALESCE(delivered_at, $4) ELSE delivered_at END,
  updated_at = now()
WHERE id = $1
`, upd.PackageID, string(upd.Status), upd.StatusCode, checkedAt, lastEvent, lastEventAt, upd.Deactivate, markDelivered)
	if err != nil {
		return 0, wrapErr(err, "update package")
	}
	if tag.RowsAffected() == 0 {
		return 0, errors.Wrapf(models.ErrPackageNotFound, "id %d", upd.PackageID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}
