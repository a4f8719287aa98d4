package sqlitetracking

import (
	"context"
	"database/sql"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) GetUsage(ctx context.Context, month string) (models.APIUsage, error) {
	u := models.APIUsage{Month: month}
	err := s.db.QueryRowContext(ctx, `SELECT registrations_used, quota_total FROM api_usage WHERE month = ?`, month).
		Scan(&u.RegistrationsUsed, &u.QuotaTotal)
	if errors.Is(err, sql.ErrNoRows) {
		u.QuotaTotal = s.defaultQuota
		return u, nil
	}
	if err != nil {
		return models.APIUsage{}, errors.Wrap(err, "select usage")
	}
	return u, nil
}

// IncrementRegistrations adds n to the month counter. The row is created on
// first use; an increment that would pass quota_total is refused.
func (s *Storage) IncrementRegistrations(ctx context.Context, month string, n int) (models.APIUsage, error) {
	if n <= 0 {
		return s.GetUsage(ctx, month)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.APIUsage{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
INSERT INTO api_usage (month, registrations_used, quota_total, updated_at)
VALUES (?, 0, ?, ?)
ON CONFLICT (month) DO NOTHING
`, month, s.defaultQuota, now); err != nil {
		return models.APIUsage{}, errors.Wrap(err, "insert usage")
	}

	res, err := tx.ExecContext(ctx, `
UPDATE api_usage
SET registrations_used = registrations_used + ?, updated_at = ?
WHERE month = ? AND registrations_used + ? <= quota_total
`, n, now, month, n)
	if err != nil {
		return models.APIUsage{}, errors.Wrap(err, "update usage")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.APIUsage{}, errors.Wrapf(models.ErrQuotaExceeded, "month %s", month)
	}

	u := models.APIUsage{Month: month}
	if err := tx.QueryRowContext(ctx, `SELECT registrations_used, quota_total FROM api_usage WHERE month = ?`, month).
		Scan(&u.RegistrationsUsed, &u.QuotaTotal); err != nil {
		return models.APIUsage{}, errors.Wrap(err, "select usage")
	}
	if err := tx.Commit(); err != nil {
		return models.APIUsage{}, errors.Wrap(err, "commit tx")
	}
	return u, nil
}

// SetQuotaTotal stores the provider-reported quota. It never drops below
// what was already used this month.
func (s *Storage) SetQuotaTotal(ctx context.Context, month string, total int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO api_usage (month, registrations_used, quota_total, updated_at)
VALUES (?, 0, ?, ?)
ON CONFLICT (month) DO UPDATE SET
  quota_total = MAX(excluded.quota_total, api_usage.registrations_used),
  updated_at = excluded.updated_at
`, month, total, formatTime(time.Now()))
	return errors.Wrap(err, "upsert quota total")
}
