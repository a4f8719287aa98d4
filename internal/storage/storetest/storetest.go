// Package storetest holds the behaviour every package store must share.
// Each storage backend runs RepositorySuite against a fresh instance.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type Store interface {
	CreatePackage(ctx context.Context, in models.PackageCreateInput) (*models.Package, error)
	GetPackage(ctx context.Context, trackingNumber string) (*models.Package, error)
	ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error)
	SetActive(ctx context.Context, packageID uint64, active bool) error
	ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	ApplyUpdate(ctx context.Context, upd models.PackageUpdate) (int, error)
	GetUsage(ctx context.Context, month string) (models.APIUsage, error)
	IncrementRegistrations(ctx context.Context, month string, n int) (models.APIUsage, error)
	SetQuotaTotal(ctx context.Context, month string, total int) error
}

// DefaultQuota is the monthly quota the factory must configure.
const DefaultQuota = 3

type RepositorySuite struct {
	suite.Suite

	// New returns an empty store configured with DefaultQuota.
	New func(t *testing.T) Store

	st  Store
	ctx context.Context
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.st = s.New(s.T())
}

func (s *RepositorySuite) create(tn string) *models.Package {
	p, err := s.st.CreatePackage(s.ctx, models.PackageCreateInput{
		TrackingNumber: tn,
		Carrier:        "CTT_PT",
		CarrierCode:    2151,
		Description:    "book " + tn,
	})
	s.Require().NoError(err)
	return p
}

func ev(ts, loc, desc string) *models.TrackingEvent {
	return &models.TrackingEvent{Timestamp: ts, Location: loc, Description: desc}
}

func (s *RepositorySuite) TestCreateAndGet() {
	p := s.create("RR123456789PT")
	s.Require().NotZero(p.ID)
	s.Require().Equal(models.StatusPending, p.Status)
	s.Require().True(p.Active)
	s.Require().Nil(p.LastCheckedAt)
	s.Require().Equal(2151, p.CarrierCode)

	got, err := s.st.GetPackage(s.ctx, "RR123456789PT")
	s.Require().NoError(err)
	s.Require().Equal(p.ID, got.ID)
	s.Require().Equal("book RR123456789PT", got.Description)
}

func (s *RepositorySuite) TestCreateDuplicate() {
	s.create("A1")
	_, err := s.st.CreatePackage(s.ctx, models.PackageCreateInput{TrackingNumber: "A1"})
	s.Require().True(errors.Is(err, models.ErrAlreadyTracked))
	s.Require().True(errors.Is(err, models.ErrStoreIntegrity))
}

func (s *RepositorySuite) TestGetMissing() {
	_, err := s.st.GetPackage(s.ctx, "nope")
	s.Require().True(errors.Is(err, models.ErrPackageNotFound))
}

func (s *RepositorySuite) TestListPackages_OrderAndInactive() {
	a := s.create("A")
	s.create("B")
	s.create("C")
	s.Require().NoError(s.st.SetActive(s.ctx, a.ID, false))

	active, err := s.st.ListPackages(s.ctx, false)
	s.Require().NoError(err)
	s.Require().Equal([]string{"B", "C"}, numbers(active))

	all, err := s.st.ListPackages(s.ctx, true)
	s.Require().NoError(err)
	s.Require().Equal([]string{"A", "B", "C"}, numbers(all))

	s.Require().NoError(s.st.SetActive(s.ctx, a.ID, true))
	got, err := s.st.GetPackage(s.ctx, "A")
	s.Require().NoError(err)
	s.Require().True(got.Active)

	s.Require().True(errors.Is(s.st.SetActive(s.ctx, 999, false), models.ErrPackageNotFound))
}

func (s *RepositorySuite) TestApplyUpdate_DedupAndOrder() {
	p := s.create("A")
	now := time.Now().UTC().Truncate(time.Second)

	n, err := s.st.ApplyUpdate(s.ctx, models.PackageUpdate{
		PackageID:  p.ID,
		CheckedAt:  now,
		Status:     models.StatusInTransit,
		StatusCode: 10,
		Events:     []*models.TrackingEvent{ev("2025-01-02 10:00", "Lisboa", "In transit"), ev("2025-01-01 09:00", "", "Accepted")},
		LastEvent:  ev("2025-01-02 10:00", "Lisboa", "In transit"),
	})
	s.Require().NoError(err)
	s.Require().Equal(2, n)

	n, err = s.st.ApplyUpdate(s.ctx, models.PackageUpdate{
		PackageID:  p.ID,
		CheckedAt:  now.Add(time.Minute),
		Status:     models.StatusInTransit,
		StatusCode: 10,
		Events: []*models.TrackingEvent{
			ev("2025-01-03 08:00", "Porto", "Out for delivery"),
			ev("2025-01-02 10:00", "Lisboa", "In transit"),
			ev("2025-01-01 09:00", "", "Accepted"),
		},
		LastEvent: ev("2025-01-03 08:00", "Porto", "Out for delivery"),
	})
	s.Require().NoError(err)
	s.Require().Equal(1, n)

	evs, err := s.st.ListEvents(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(evs, 3)
	s.Require().Equal("Out for delivery", evs[0].Description)
	s.Require().Equal("In transit", evs[1].Description)
	s.Require().Equal("Accepted", evs[2].Description)
	s.Require().Equal("", evs[2].Location)

	got, err := s.st.GetPackage(s.ctx, "A")
	s.Require().NoError(err)
	s.Require().Equal(models.StatusInTransit, got.Status)
	s.Require().Equal("Out for delivery", got.LastEvent)
	s.Require().Equal("2025-01-03 08:00", got.LastEventAt)
	s.Require().True(got.Active)
}

func (s *RepositorySuite) TestApplyUpdate_LastCheckedOnlyMovesForward() {
	p := s.create("A")
	later := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.st.ApplyUpdate(s.ctx, models.PackageUpdate{PackageID: p.ID, CheckedAt: later, Status: models.StatusNotFound})
	s.Require().NoError(err)
	_, err = s.st.ApplyUpdate(s.ctx, models.PackageUpdate{PackageID: p.ID, CheckedAt: later.Add(-time.Hour), Status: models.StatusNotFound})
	s.Require().NoError(err)

	got, err := s.st.GetPackage(s.ctx, "A")
	s.Require().NoError(err)
	s.Require().NotNil(got.LastCheckedAt)
	s.Require().True(later.Equal(*got.LastCheckedAt), "got %s", got.LastCheckedAt)
	s.Require().Empty(got.LastEvent)
}

func (s *RepositorySuite) TestApplyUpdate_DeliveredDeactivates() {
	p := s.create("A")
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.st.ApplyUpdate(s.ctx, models.PackageUpdate{
		PackageID:  p.ID,
		CheckedAt:  at,
		Status:     models.StatusDelivered,
		StatusCode: 40,
		Events:     []*models.TrackingEvent{ev("2025-03-01 11:00", "Lisboa", "Delivered")},
		Deactivate: true,
	})
	s.Require().NoError(err)

	got, err := s.st.GetPackage(s.ctx, "A")
	s.Require().NoError(err)
	s.Require().False(got.Active)
	s.Require().Equal(models.StatusDelivered, got.Status)
	s.Require().NotNil(got.DeliveredAt)
	s.Require().True(at.Equal(*got.DeliveredAt))

	active, err := s.st.ListPackages(s.ctx, false)
	s.Require().NoError(err)
	s.Require().Empty(active)

	_, err = s.st.ApplyUpdate(s.ctx, models.PackageUpdate{PackageID: 999, CheckedAt: at, Status: models.StatusAlert})
	s.Require().True(errors.Is(err, models.ErrPackageNotFound))
}

func (s *RepositorySuite) TestUsage_QuotaGuard() {
	u, err := s.st.GetUsage(s.ctx, "2025-01")
	s.Require().NoError(err)
	s.Require().Equal(models.APIUsage{Month: "2025-01", RegistrationsUsed: 0, QuotaTotal: DefaultQuota}, u)

	u, err = s.st.IncrementRegistrations(s.ctx, "2025-01", 2)
	s.Require().NoError(err)
	s.Require().Equal(2, u.RegistrationsUsed)

	_, err = s.st.IncrementRegistrations(s.ctx, "2025-01", 2)
	s.Require().True(errors.Is(err, models.ErrQuotaExceeded))

	u, err = s.st.GetUsage(s.ctx, "2025-01")
	s.Require().NoError(err)
	s.Require().Equal(2, u.RegistrationsUsed)
	s.Require().Equal(1, u.Remaining())

	// другой месяц, свой счётчик
	u, err = s.st.IncrementRegistrations(s.ctx, "2025-02", 3)
	s.Require().NoError(err)
	s.Require().Equal(3, u.RegistrationsUsed)

	u, err = s.st.IncrementRegistrations(s.ctx, "2025-02", 0)
	s.Require().NoError(err)
	s.Require().Equal(3, u.RegistrationsUsed)
}

func (s *RepositorySuite) TestUsage_SetQuotaTotal() {
	s.Require().NoError(s.st.SetQuotaTotal(s.ctx, "2025-01", 50))
	u, err := s.st.IncrementRegistrations(s.ctx, "2025-01", 10)
	s.Require().NoError(err)
	s.Require().Equal(50, u.QuotaTotal)

	// never below what is already used
	s.Require().NoError(s.st.SetQuotaTotal(s.ctx, "2025-01", 4))
	u, err = s.st.GetUsage(s.ctx, "2025-01")
	s.Require().NoError(err)
	s.Require().Equal(10, u.QuotaTotal)
	s.Require().Equal(10, u.RegistrationsUsed)
}

func numbers(ps []*models.Package) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.TrackingNumber)
	}
	return out
}
