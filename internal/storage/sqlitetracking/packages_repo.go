package sqlitetracking

import (
	"context"
	"database/sql"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

const packageColumns = `
  id, tracking_number, carrier, carrier_code, description,
  status, active, last_event, last_event_at,
  last_checked_at, delivered_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(r rowScanner) (*models.Package, error) {
	var (
		p                      models.Package
		status                 string
		active                 int
		lastChecked, delivered sql.NullString
		createdAt, updatedAt   string
	)
	if err := r.Scan(
		&p.ID, &p.TrackingNumber, &p.Carrier, &p.CarrierCode, &p.Description,
		&status, &active, &p.LastEvent, &p.LastEventAt,
		&lastChecked, &delivered, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	p.Active = active != 0

	var err error
	if p.LastCheckedAt, err = parseNullTime(lastChecked); err != nil {
		return nil, err
	}
	if p.DeliveredAt, err = parseNullTime(delivered); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePackage inserts a new active package in Pending status.
// An existing row with the same tracking number yields ErrAlreadyTracked.
func (s *Storage) CreatePackage(ctx context.Context, in models.PackageCreateInput) (*models.Package, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
INSERT INTO packages (
  tracking_number, carrier, carrier_code, description, status, active, created_at, updated_at
)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (tracking_number) DO NOTHING
`, in.TrackingNumber, in.Carrier, in.CarrierCode, in.Description, models.StatusPending, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert package")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return nil, errors.Wrap(models.ErrAlreadyTracked, in.TrackingNumber)
	}
	return s.GetPackage(ctx, in.TrackingNumber)
}

func (s *Storage) GetPackage(ctx context.Context, trackingNumber string) (*models.Package, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+packageColumns+` FROM packages WHERE tracking_number = ?`, trackingNumber)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(models.ErrPackageNotFound, trackingNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select package")
	}
	return p, nil
}

// ListPackages returns packages in creation order.
func (s *Storage) ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error) {
	q := `SELECT` + packageColumns + ` FROM packages`
	if !includeInactive {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "select packages")
	}
	defer rows.Close()

	out := make([]*models.Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SetActive flips the active flag. It never touches status or history.
func (s *Storage) SetActive(ctx context.Context, packageID uint64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE packages SET active = ?, updated_at = ? WHERE id = ?`,
		v, formatTime(time.Now()), packageID)
	if err != nil {
		return errors.Wrap(err, "update package active")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(models.ErrPackageNotFound, "id %d", packageID)
	}
	return nil
}
