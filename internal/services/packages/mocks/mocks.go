package mocks

import (
	"context"

	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/services/reconcile"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePackage(ctx context.Context, in models.PackageCreateInput) (*models.Package, error) {
	args := m.Called(ctx, in)
	p, _ := args.Get(0).(*models.Package)
	return p, args.Error(1)
}

func (m *MockRepository) GetPackage(ctx context.Context, trackingNumber string) (*models.Package, error) {
	args := m.Called(ctx, trackingNumber)
	p, _ := args.Get(0).(*models.Package)
	return p, args.Error(1)
}

func (m *MockRepository) ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error) {
	args := m.Called(ctx, includeInactive)
	ps, _ := args.Get(0).([]*models.Package)
	return ps, args.Error(1)
}

func (m *MockRepository) SetActive(ctx context.Context, packageID uint64, active bool) error {
	args := m.Called(ctx, packageID, active)
	return args.Error(0)
}

func (m *MockRepository) ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error) {
	args := m.Called(ctx, packageID)
	evs, _ := args.Get(0).([]*models.TrackingEvent)
	return evs, args.Error(1)
}

func (m *MockRepository) GetUsage(ctx context.Context, month string) (models.APIUsage, error) {
	args := m.Called(ctx, month)
	return args.Get(0).(models.APIUsage), args.Error(1)
}

func (m *MockRepository) IncrementRegistrations(ctx context.Context, month string, n int) (models.APIUsage, error) {
	args := m.Called(ctx, month, n)
	return args.Get(0).(models.APIUsage), args.Error(1)
}

func (m *MockRepository) SetQuotaTotal(ctx context.Context, month string, total int) error {
	args := m.Called(ctx, month, total)
	return args.Error(0)
}

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, items []provider.RegisterItem) (provider.RegisterResult, error) {
	args := m.Called(ctx, items)
	return args.Get(0).(provider.RegisterResult), args.Error(1)
}

func (m *MockRegistrar) FetchQuota(ctx context.Context) (provider.Quota, error) {
	args := m.Called(ctx)
	return args.Get(0).(provider.Quota), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, packages []*models.Package) (*reconcile.Report, error) {
	args := m.Called(ctx, packages)
	r, _ := args.Get(0).(*reconcile.Report)
	return r, args.Error(1)
}
