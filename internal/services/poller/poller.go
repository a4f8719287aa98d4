// Package poller drives reconciliation in watch mode: one pass per tick or
// manual trigger, notifications fanned out to the configured sinks.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/notify"
	"github.com/BearBump/packtrack/internal/services/reconcile"
	"github.com/pkg/errors"
)

const DefaultInterval = 30 * time.Minute

type Checker interface {
	CheckAll(ctx context.Context) (*reconcile.Report, error)
}

type Poller struct {
	checker Checker
	sink    notify.Notifier

	interval time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalChecked        atomic.Int64
	totalNotified       atomic.Int64
	totalSoftFailures   atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(checker Checker, sink notify.Notifier) *Poller {
	return &Poller{
		checker:           checker,
		sink:              sink,
		interval:          DefaultInterval,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(interval time.Duration) *Poller {
	if interval > 0 {
		p.interval = interval
	}
	return p
}

// Trigger forces an immediate pass (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt         time.Time  `json:"startedAt"`
	IntervalSeconds   int64      `json:"intervalSeconds"`
	LastCycleAt       *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt     *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles       int64      `json:"totalCycles"`
	TotalChecked      int64      `json:"totalChecked"`
	TotalNotified     int64      `json:"totalNotified"`
	TotalSoftFailures int64      `json:"totalSoftFailures"`
	TotalErrors       int64      `json:"totalErrors"`
	InFlight          int64      `json:"inFlight"`
	LastError         string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:         time.Unix(0, p.startedAtUnixNano).UTC(),
		IntervalSeconds:   int64(p.interval / time.Second),
		TotalCycles:       p.totalCycles.Load(),
		TotalChecked:      p.totalChecked.Load(),
		TotalNotified:     p.totalNotified.Load(),
		TotalSoftFailures: p.totalSoftFailures.Load(),
		TotalErrors:       p.totalErrors.Load(),
		InFlight:          p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run loops until ctx is done. A configuration error (bad API key) stops the
// loop since no later pass can succeed; anything else is logged and retried
// on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-p.triggerCh:
		}
		if err := p.RunOnce(ctx); errors.Is(err, models.ErrConfiguration) {
			return err
		}
	}
}

// RunOnce performs a single pass and dispatches its notifications.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())
	p.totalCycles.Add(1)
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	report, err := p.checker.CheckAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(err)
		slog.Error("reconciliation pass failed", "error", err.Error())
		return err
	}
	p.totalChecked.Add(int64(report.Checked))
	p.totalSoftFailures.Add(int64(len(report.SoftFailures)))

	sent, err := notify.Dispatch(ctx, p.sink, report.Notifications)
	p.totalNotified.Add(int64(sent))
	if err != nil {
		p.fail(err)
		slog.Error("dispatch notifications", "sent", sent, "total", len(report.Notifications), "error", err.Error())
	}

	slog.Info("reconciliation pass done",
		"checked", report.Checked,
		"notifications", len(report.Notifications),
		"soft_failures", len(report.SoftFailures),
	)
	return err
}

func (p *Poller) fail(err error) {
	p.totalErrors.Add(1)
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}
