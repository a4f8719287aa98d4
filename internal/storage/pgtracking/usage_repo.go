package pgtracking

import (
	"context"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetUsage(ctx context.Context, month string) (models.APIUsage, error) {
	u := models.APIUsage{Month: month}
	err := s.db.QueryRow(ctx, `SELECT registrations_used, quota_total FROM api_usage WHERE month = $1`, month).
		Scan(&u.RegistrationsUsed, &u.QuotaTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		u.QuotaTotal = s.defaultQuota
		return u, nil
	}
	if err != nil {
		return models.APIUsage{}, errors.Wrap(err, "select usage")
	}
	return u, nil
}

func (s *Storage) IncrementRegistrations(ctx context.Context, month string, n int) (models.APIUsage, error) {
	if n <= 0 {
		return s.GetUsage(ctx, month)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.APIUsage{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO api_usage (month, registrations_used, quota_total, updated_at)
VALUES ($1, 0, $2, now())
ON CONFLICT (month) DO NOTHING
`, month, s.defaultQuota); err != nil {
		return models.APIUsage{}, wrapErr(err, "insert usage")
	}

	u := models.APIUsage{Month: month}
	err = tx.QueryRow(ctx, `
UPDATE api_usage
SET registrations_used = registrations_used + $2, updated_at = now()
WHERE month = $1 AND registrations_used + $2 <= quota_total
RETURNING registrations_used, quota_total
`, month, n).Scan(&u.RegistrationsUsed, &u.QuotaTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.APIUsage{}, errors.Wrapf(models.ErrQuotaExceeded, "month %s", month)
	}
	if err != nil {
		return models.APIUsage{}, wrapErr(err, "update usage")
	}

	if err := tx.Commit(ctx); err != nil {
		return models.APIUsage{}, errors.Wrap(err, "commit tx")
	}
	return u, nil
}

func (s *Storage) SetQuotaTotal(ctx context.Context, month string, total int) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO api_usage (month, registrations_used, quota_total, updated_at)
VALUES ($1, 0, $2, now())
ON CONFLICT (month) DO UPDATE SET
  quota_total = GREATEST(EXCLUDED.quota_total, api_usage.registrations_used),
  updated_at = now()
`, month, total)
	return wrapErr(err, "upsert quota total")
}
