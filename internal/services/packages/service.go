package packages

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/packtrack/internal/cache"
	"github.com/BearBump/packtrack/internal/carriers"
	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/services/reconcile"
	"github.com/pkg/errors"
)

const (
	DefaultQuotaWarnAt = 95
	maxBatch           = 1000
)

type Repository interface {
	CreatePackage(ctx context.Context, in models.PackageCreateInput) (*models.Package, error)
	GetPackage(ctx context.Context, trackingNumber string) (*models.Package, error)
	ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error)
	SetActive(ctx context.Context, packageID uint64, active bool) error
	ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	GetUsage(ctx context.Context, month string) (models.APIUsage, error)
	IncrementRegistrations(ctx context.Context, month string, n int) (models.APIUsage, error)
	SetQuotaTotal(ctx context.Context, month string, total int) error
}

type Registrar interface {
	Register(ctx context.Context, items []provider.RegisterItem) (provider.RegisterResult, error)
	FetchQuota(ctx context.Context) (provider.Quota, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, packages []*models.Package) (*reconcile.Report, error)
}

type AddInput struct {
	TrackingNumber string
	Description    string
	// Carrier is an optional explicit carrier name; it always wins over detection.
	Carrier string
}

type AddOutcome struct {
	TrackingNumber string
	Package        *models.Package
	Reactivated    bool
	Err            error
}

type QuotaInfo struct {
	models.APIUsage
	Warning bool

	Provider    *provider.Quota
	ProviderErr error
}

type Service struct {
	repo     Repository
	provider Registrar
	engine   Reconciler

	cache    cache.BytesCache
	quotaTTL time.Duration
	warnAt   int

	now func() time.Time
}

func New(repo Repository, p Registrar, engine Reconciler) *Service {
	return &Service{
		repo:     repo,
		provider: p,
		engine:   engine,
		warnAt:   DefaultQuotaWarnAt,
		now:      time.Now,
	}
}

// WithSettings sets the optional quota cache and the usage warning threshold.
func (s *Service) WithSettings(c cache.BytesCache, quotaTTL time.Duration, warnAt int) *Service {
	s.cache = c
	s.quotaTTL = quotaTTL
	if warnAt > 0 {
		s.warnAt = warnAt
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func normalize(tn string) string {
	return strings.ToUpper(strings.TrimSpace(tn))
}

// AddPackage registers one number with the provider and starts tracking it.
// An inactive package is reactivated without touching the quota.
func (s *Service) AddPackage(ctx context.Context, in AddInput) (*models.Package, error) {
	out, err := s.AddPackages(ctx, []AddInput{in})
	if err != nil {
		return nil, err
	}
	return out[0].Package, out[0].Err
}

// AddPackages adds many numbers with a single provider call. Per-number
// problems are reported in the outcomes; configuration errors abort.
// When fewer registrations remain than new numbers, the excess is refused
// with ErrQuotaExceeded before the provider is called.
func (s *Service) AddPackages(ctx context.Context, in []AddInput) ([]AddOutcome, error) {
	if len(in) == 0 {
		return nil, errors.Wrap(models.ErrInvalidTrackingNumber, "nothing to add")
	}
	if len(in) > maxBatch {
		return nil, errors.Errorf("too many packages (max %d)", maxBatch)
	}

	out := make([]AddOutcome, len(in))
	type pending struct {
		idx     int
		carrier carriers.Carrier
		desc    string
	}
	var todo []pending
	seen := make(map[string]struct{}, len(in))

	for i, it := range in {
		tn := normalize(it.TrackingNumber)
		out[i].TrackingNumber = tn
		if tn == "" {
			out[i].Err = errors.Wrap(models.ErrInvalidTrackingNumber, "tracking number cannot be empty")
			continue
		}
		if _, dup := seen[tn]; dup {
			out[i].Err = errors.Wrap(models.ErrAlreadyTracked, tn)
			continue
		}
		seen[tn] = struct{}{}

		c := carriers.Detect(tn)
		if it.Carrier != "" {
			parsed, err := carriers.Parse(it.Carrier)
			if err != nil {
				out[i].Err = err
				continue
			}
			c = parsed
		}

		existing, err := s.repo.GetPackage(ctx, tn)
		switch {
		case err == nil && existing.Active:
			out[i].Err = errors.Wrap(models.ErrAlreadyTracked, tn)
			continue
		case err == nil:
			if err := s.repo.SetActive(ctx, existing.ID, true); err != nil {
				out[i].Err = err
				continue
			}
			existing.Active = true
			out[i].Package = existing
			out[i].Reactivated = true
			slog.Info("package reactivated", "tracking_number", tn)
			continue
		case !errors.Is(err, models.ErrPackageNotFound):
			out[i].Err = err
			continue
		}

		todo = append(todo, pending{idx: i, carrier: c, desc: strings.TrimSpace(it.Description)})
	}
	if len(todo) == 0 {
		return out, nil
	}

	month := models.MonthKey(s.now())
	usage, err := s.repo.GetUsage(ctx, month)
	if err != nil {
		return nil, errors.Wrap(err, "load usage")
	}
	if usage.RegistrationsUsed >= s.warnAt {
		slog.Warn("registration quota almost used", "month", month, "used", usage.RegistrationsUsed, "total", usage.QuotaTotal)
	}
	if remaining := usage.Remaining(); remaining < len(todo) {
		for _, p := range todo[remaining:] {
			out[p.idx].Err = errors.Wrapf(models.ErrQuotaExceeded, "%d/%d registrations used in %s",
				usage.RegistrationsUsed, usage.QuotaTotal, month)
		}
		todo = todo[:remaining]
		if len(todo) == 0 {
			return out, nil
		}
	}

	items := make([]provider.RegisterItem, 0, len(todo))
	for _, p := range todo {
		items = append(items, provider.RegisterItem{Number: out[p.idx].TrackingNumber, CarrierCode: p.carrier.Code()})
	}
	// Register may fail after earlier batches were accepted: those numbers
	// already used provider quota and are stored and counted below.
	res, regErr := s.provider.Register(ctx, items)
	answered := len(res.Accepted) + len(res.Rejected)
	if regErr != nil && answered == 0 && !errors.Is(regErr, models.ErrQuotaExceeded) {
		return nil, errors.Wrap(regErr, "register")
	}
	if regErr != nil {
		slog.Warn("registration partially failed", "accepted", len(res.Accepted), "error", regErr.Error())
	}

	accepted := make(map[string]provider.Accepted, len(res.Accepted))
	for _, a := range res.Accepted {
		accepted[a.Number] = a
	}
	rejected := make(map[string]provider.Rejected, len(res.Rejected))
	for _, r := range res.Rejected {
		rejected[r.Number] = r
	}

	newlyRegistered := 0
	for _, p := range todo {
		o := &out[p.idx]
		c, code := p.carrier, p.carrier.Code()

		if a, ok := accepted[o.TrackingNumber]; ok {
			newlyRegistered++
			if a.CarrierCode != 0 && !c.Known() {
				code = a.CarrierCode
				c = carriers.ForCode(code)
			}
		} else if r, ok := rejected[o.TrackingNumber]; ok {
			if err := rejectionErr(r); err != nil {
				o.Err = err
				continue
			}
		} else {
			o.Err = errors.Errorf("provider did not answer for %s", o.TrackingNumber)
			if regErr != nil {
				o.Err = regErr
			}
			continue
		}

		pkg, err := s.repo.CreatePackage(ctx, models.PackageCreateInput{
			TrackingNumber: o.TrackingNumber,
			Carrier:        string(c),
			CarrierCode:    code,
			Description:    p.desc,
		})
		if err != nil {
			o.Err = err
			continue
		}
		o.Package = pkg
		slog.Info("package added", "tracking_number", pkg.TrackingNumber, "carrier", c.Name(), "carrier_code", code)
	}

	if newlyRegistered > 0 {
		if _, err := s.repo.IncrementRegistrations(ctx, month, newlyRegistered); err != nil {
			slog.Error("failed to count registrations", "month", month, "n", newlyRegistered, "error", err.Error())
		}
		s.dropQuotaCache(ctx)
	}
	return out, nil
}

func rejectionErr(r provider.Rejected) error {
	switch r.Reason {
	case provider.ReasonAlreadyRegistered:
		return nil
	case provider.ReasonInvalidNumber:
		return errors.Wrapf(models.ErrInvalidTrackingNumber, "%s: %s (code %d)", r.Number, r.Message, r.Code)
	case provider.ReasonQuotaExceeded:
		return errors.Wrap(models.ErrQuotaExceeded, r.Number)
	default:
		return errors.Errorf("17track rejected %s: %s (code %d)", r.Number, r.Message, r.Code)
	}
}

// CheckAll reconciles every active package.
func (s *Service) CheckAll(ctx context.Context) (*reconcile.Report, error) {
	pkgs, err := s.repo.ListPackages(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "list packages")
	}
	return s.engine.Reconcile(ctx, pkgs)
}

// Check reconciles the given numbers only.
func (s *Service) Check(ctx context.Context, numbers ...string) (*reconcile.Report, error) {
	pkgs := make([]*models.Package, 0, len(numbers))
	for _, n := range numbers {
		p, err := s.repo.GetPackage(ctx, normalize(n))
		if err != nil {
			return nil, err
		}
		if !p.Active {
			return nil, errors.Wrap(models.ErrPackageInactive, p.TrackingNumber)
		}
		pkgs = append(pkgs, p)
	}
	return s.engine.Reconcile(ctx, pkgs)
}

func (s *Service) ListPackages(ctx context.Context, includeInactive bool) ([]*models.Package, error) {
	return s.repo.ListPackages(ctx, includeInactive)
}

func (s *Service) GetDetails(ctx context.Context, number string) (*models.PackageDetails, error) {
	p, err := s.repo.GetPackage(ctx, normalize(number))
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return &models.PackageDetails{
		Package:     p,
		Events:      events,
		TrackingURL: carriers.Carrier(p.Carrier).TrackingURL(p.TrackingNumber),
	}, nil
}

// RemovePackage stops tracking; history is kept.
func (s *Service) RemovePackage(ctx context.Context, number string) error {
	tn := normalize(number)
	if tn == "" {
		return errors.Wrap(models.ErrInvalidTrackingNumber, "tracking number cannot be empty")
	}
	p, err := s.repo.GetPackage(ctx, tn)
	if err != nil {
		return err
	}
	if !p.Active {
		return errors.Wrap(models.ErrPackageInactive, tn)
	}
	return s.repo.SetActive(ctx, p.ID, false)
}

// LocalUsage reports this month's counter without calling the provider.
func (s *Service) LocalUsage(ctx context.Context) (QuotaInfo, error) {
	u, err := s.repo.GetUsage(ctx, models.MonthKey(s.now()))
	if err != nil {
		return QuotaInfo{}, errors.Wrap(err, "load usage")
	}
	return QuotaInfo{APIUsage: u, Warning: u.RegistrationsUsed >= s.warnAt}, nil
}

// GetQuota adds the provider's own view to the local counter. A provider
// failure is reported in ProviderErr, not returned.
func (s *Service) GetQuota(ctx context.Context) (QuotaInfo, error) {
	info, err := s.LocalUsage(ctx)
	if err != nil {
		return QuotaInfo{}, err
	}

	q, err := s.providerQuota(ctx)
	if err != nil {
		info.ProviderErr = err
		return info, nil
	}
	info.Provider = &q
	if q.Total > 0 && q.Total != info.QuotaTotal {
		if err := s.repo.SetQuotaTotal(ctx, info.Month, q.Total); err != nil {
			slog.Warn("failed to store provider quota", "error", err.Error())
		} else if u, err := s.repo.GetUsage(ctx, info.Month); err == nil {
			info.APIUsage = u
		}
	}
	return info, nil
}

const providerQuotaKey = "quota:provider"

func (s *Service) providerQuota(ctx context.Context) (provider.Quota, error) {
	if s.cache != nil && s.quotaTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, providerQuotaKey); err == nil && ok {
			var q provider.Quota
			if json.Unmarshal(b, &q) == nil {
				return q, nil
			}
		}
	}

	q, err := s.provider.FetchQuota(ctx)
	if err != nil {
		return provider.Quota{}, err
	}
	if s.cache != nil && s.quotaTTL > 0 {
		b, _ := json.Marshal(q)
		_ = s.cache.Set(ctx, providerQuotaKey, b, s.quotaTTL)
	}
	return q, nil
}

func (s *Service) dropQuotaCache(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, providerQuotaKey)
	}
}
