package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/packtrack/config"
	"github.com/BearBump/packtrack/internal/broker/messages"
	"github.com/BearBump/packtrack/internal/lock"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/notify"
	"github.com/BearBump/packtrack/internal/services/poller"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (c *cli) watchCmd() *cobra.Command {
	var (
		interval time.Duration
		addr     string
		noHTTP   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check packages periodically and serve a small control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			l, err := a.acquireLock()
			if err != nil {
				return err
			}
			defer func() { _ = l.Release() }()

			if interval <= 0 {
				interval = time.Duration(c.cfg.Tracker.WatchIntervalSeconds) * time.Second
			}
			p := poller.New(a.svc, a.sinks(c.stdout, true)).WithSettings(interval)
			// первый проход сразу, не дожидаясь тикера
			p.Trigger()

			opts := watchHTTPOpts{
				httpAddr: addr,
				poller:   p,
				store:    a.store,
				cfg:      c.cfg,
				onListen: func(addr string) {
					slog.Info("watch http listening", "addr", addr)
				},
			}
			if opts.httpAddr == "" {
				opts.httpAddr = c.cfg.Tracker.WatchHTTPAddr
			}
			if noHTTP {
				opts.httpAddr = ""
			}
			return runWatch(ctx, p, l, staleAfter(c.cfg), opts)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (default 30m or tracker.watch_interval_seconds)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default "+defaultWatchAddr+")")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not start the HTTP server")
	return cmd
}

// runWatch runs the poller, the lock heartbeat and (when httpAddr is set) the
// HTTP server until ctx is cancelled or one of them fails.
func runWatch(ctx context.Context, p *poller.Poller, l *lock.Lock, stale time.Duration, opts watchHTTPOpts) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return heartbeat(gctx, l, stale/3) })
	if opts.httpAddr != "" {
		g.Go(func() error { return runWatchHTTPServer(gctx, opts) })
	}

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func heartbeat(ctx context.Context, l *lock.Lock, every time.Duration) error {
	if every <= 0 {
		every = lock.DefaultStaleAfter / 3
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := l.Touch(); err != nil {
				if errors.Is(err, lock.ErrLost) {
					return err
				}
				slog.Warn("failed to refresh lock", "path", l.Path(), "error", err.Error())
			}
		}
	}
}

func staleAfter(cfg *config.Config) time.Duration {
	if cfg.Storage.LockStaleSeconds > 0 {
		return time.Duration(cfg.Storage.LockStaleSeconds) * time.Second
	}
	return lock.DefaultStaleAfter
}

func (c *cli) relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Print (and optionally pop up) package updates published to kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.Kafka.Enabled() {
				return errors.Wrap(models.ErrConfiguration, "kafka.host is not set")
			}
			ctx := cmd.Context()

			consumer := c.f.newConsumer(c.cfg)
			defer func() { _ = consumer.Close() }()

			var desktop notify.Notifier
			if c.cfg.Tracker.DesktopNotifications && c.f.newDesktop != nil {
				desktop = c.f.newDesktop()
			}

			err := consumer.ConsumeUpdates(ctx, func(ctx context.Context, msg messages.PackageUpdated) error {
				slog.Debug("package update received", "id", msg.ID, "tracking_number", msg.TrackingNumber)
				if _, err := fmt.Fprintf(c.stdout, "%s\n%s\n%s\n", relayRule, msg.Text, relayRule); err != nil {
					return errors.Wrap(err, "write update")
				}
				if desktop != nil {
					if err := desktop.Notify(ctx, msg.Notification()); err != nil {
						slog.Warn("desktop notification failed", "tracking_number", msg.TrackingNumber, "error", err.Error())
					}
				}
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

const relayRule = "=================================================="
