package pgtracking

import (
	"context"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db           *pgxpool.Pool
	defaultQuota int
}

func New(connString string, defaultQuota int) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(models.ErrConfiguration, "parse pg config: "+err.Error())
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}
	if defaultQuota <= 0 {
		defaultQuota = models.DefaultMonthlyQuota
	}

	s := &Storage{db: db, defaultQuota: defaultQuota}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "ping pg")
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// wrapErr maps integrity violations (SQLSTATE class 23) to ErrStoreIntegrity.
func wrapErr(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return errors.Wrapf(models.ErrStoreIntegrity, "%s: %s (%s)", msg, pgErr.Message, pgErr.Code)
	}
	return errors.Wrap(err, msg)
}
