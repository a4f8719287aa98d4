package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const packageColumns = `
  id, tracking_number, carrier, carrier_code, description,
  status, active, last_event, last_event_at,
  last_checked_at, delivered_at, created_at, updated_at`

func scanPackage(r pgx.Row) (*models.Package, error) {
	var p models.Package
	var status string
	if err := r.Scan(
		&p.ID, &p.TrackingNumber, &p.Carrier, &p.CarrierCode, &p.Description,
		&status, &p.Active, &p.LastEvent, &p.LastEventAt,
		&p.LastCheckedAt, &p.DeliveredAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = models.Status(status)
	return &p, nil
}

func (s *Storage) CreatePackage(ctx context.Context, in models.PackageCreateInput) (*models.Package, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
INSERT INTO packages (
  tracking_number, carrier, carrier_code, description, status, active, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,TRUE,$6,$6)
ON CONFLICT (tracking_number) DO NOTHING
`, in.TrackingNumber, in.Carrier, in.CarrierCode, in.Description, string(models.StatusPending), now)
	if err != nil {
		return nil, wrapErr(err, "insert package")
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrap(models.ErrAlreadyTracked, in.TrackingNumber)
	}
	return s.GetPackage(ctx, in.TrackingNumber)
}

func (s *Storage) GetPackage(ctx context.Context, trackingNumber string) (*models.Package, error) {
	row := s.db.QueryRow(ctx, `SELECT`+packageColumns+` FROM packages WHERE tracking_number = $1`, trackingNumber)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrPackageNotFound, trackingNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select package")
	}
	return p, nil
}

func (s *Storage) ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+packageColumns+`
FROM packages
WHERE active OR $1
ORDER BY created_at ASC, id ASC
`, includeInactive)
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

func (s *Storage) SetActive(ctx context.Context, packageID uint64, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE packages SET active = $2, updated_at = now() WHERE id = $1`, packageID, active)
	if err != nil {
		return errors.Wrap(err, "update package active")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrPackageNotFound, "id %d", packageID)
	}
	return nil
}
