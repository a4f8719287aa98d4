package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/packtrack/internal/carriers"
	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

type StatusFetcher interface {
	FetchStatus(ctx context.Context, numbers []string) (provider.StatusResult, error)
}

type Repository interface {
	ListEvents(ctx context.Context, packageID uint64) ([]*models.TrackingEvent, error)
	ApplyUpdate(ctx context.Context, upd models.PackageUpdate) (int, error)
}

type SoftFailure struct {
	TrackingNumber string
	Err            error
}

// Report is the outcome of one pass. Notifications follow input order.
type Report struct {
	Checked       int
	Notifications []models.Notification
	SoftFailures  []SoftFailure
	Warnings      []string
}

type Engine struct {
	provider StatusFetcher
	repo     Repository
	now      func() time.Time
}

func New(p StatusFetcher, repo Repository) *Engine {
	return &Engine{provider: p, repo: repo, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Reconcile fetches the current state of every active package, stores what
// is new and returns one notification per package that changed.
// Only configuration (or context) errors abort the pass.
func (e *Engine) Reconcile(ctx context.Context, packages []*models.Package) (*Report, error) {
	report := &Report{}

	active := make([]*models.Package, 0, len(packages))
	numbers := make([]string, 0, len(packages))
	for _, p := range packages {
		if p == nil || !p.Active {
			continue
		}
		active = append(active, p)
		numbers = append(numbers, p.TrackingNumber)
	}
	if len(active) == 0 {
		return report, nil
	}

	res, err := e.provider.FetchStatus(ctx, numbers)
	if err != nil {
		return nil, errors.Wrap(err, "fetch status")
	}

	checkedAt := e.now().UTC()
	for _, p := range active {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ferr, ok := res.Failed[p.TrackingNumber]; ok {
			report.soft(p.TrackingNumber, ferr)
			continue
		}
		track, ok := res.Tracks[p.TrackingNumber]
		if !ok {
			report.soft(p.TrackingNumber, errors.New("provider returned no data"))
			continue
		}

		n, err := e.apply(ctx, p, track, checkedAt, report)
		if err != nil {
			report.soft(p.TrackingNumber, err)
			continue
		}
		report.Checked++
		if n != nil {
			report.Notifications = append(report.Notifications, *n)
		}
	}
	return report, nil
}

func (e *Engine) apply(ctx context.Context, p *models.Package, track provider.RawTrack, checkedAt time.Time, report *Report) (*models.Notification, error) {
	status, err := MapStatus(track.StatusCode)
	if err != nil {
		w := fmt.Sprintf("%s: %v, treating as %s", p.TrackingNumber, err, status)
		slog.Warn("unknown provider status", "tracking_number", p.TrackingNumber, "code", track.StatusCode)
		report.Warnings = append(report.Warnings, w)
	}

	events := normalizeEvents(track)

	stored, err := e.repo.ListEvents(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load events")
	}
	known := make(map[models.EventKey]struct{}, len(stored))
	for _, ev := range stored {
		known[ev.Key()] = struct{}{}
	}
	fresh := make([]*models.TrackingEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := known[ev.Key()]; !ok {
			fresh = append(fresh, ev)
		}
	}

	var latest *models.TrackingEvent
	if len(events) > 0 {
		latest = events[0]
	}

	upd := models.PackageUpdate{
		PackageID:  p.ID,
		CheckedAt:  checkedAt,
		Status:     status,
		StatusCode: track.StatusCode,
		Events:     fresh,
		LastEvent:  latest,
		Deactivate: status == models.StatusDelivered,
	}
	if _, err := e.repo.ApplyUpdate(ctx, upd); err != nil {
		return nil, errors.Wrap(err, "persist update")
	}

	if len(fresh) == 0 && status == p.Status {
		return nil, nil
	}

	slog.Info("package updated",
		"tracking_number", p.TrackingNumber,
		"old_status", p.Status,
		"new_status", status,
		"new_events", len(fresh),
	)

	c := carriers.Carrier(p.Carrier)
	return &models.Notification{
		TrackingNumber: p.TrackingNumber,
		Carrier:        c.Name(),
		Description:    p.Description,
		OldStatus:      p.Status,
		NewStatus:      status,
		NewEvents:      len(fresh),
		LatestEvent:    latest,
		TrackingURL:    c.TrackingURL(p.TrackingNumber),
	}, nil
}

// normalizeEvents keeps provider order (newest first), trims fields and
// drops empty and repeated entries.
func normalizeEvents(track provider.RawTrack) []*models.TrackingEvent {
	out := make([]*models.TrackingEvent, 0, len(track.Events))
	seen := make(map[models.EventKey]struct{}, len(track.Events))
	for _, raw := range track.Events {
		ev := &models.TrackingEvent{
			Timestamp:   strings.TrimSpace(raw.Time),
			Location:    strings.TrimSpace(raw.Location),
			Description: strings.TrimSpace(raw.Description),
			StatusCode:  track.StatusCode,
		}
		if ev.Timestamp == "" && ev.Description == "" {
			continue
		}
		if _, ok := seen[ev.Key()]; ok {
			continue
		}
		seen[ev.Key()] = struct{}{}
		out = append(out, ev)
	}
	return out
}

func (r *Report) soft(number string, err error) {
	slog.Warn("package check failed", "tracking_number", number, "error", err.Error())
	r.SoftFailures = append(r.SoftFailures, SoftFailure{TrackingNumber: number, Err: err})
}
