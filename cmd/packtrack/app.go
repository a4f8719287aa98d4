package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/BearBump/packtrack/config"
	"github.com/BearBump/packtrack/internal/broker/kafka"
	"github.com/BearBump/packtrack/internal/broker/messages"
	"github.com/BearBump/packtrack/internal/cache/rediscache"
	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/integrations/provider/fake"
	"github.com/BearBump/packtrack/internal/integrations/provider/seventeentrack"
	"github.com/BearBump/packtrack/internal/lock"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/notify"
	"github.com/BearBump/packtrack/internal/retry"
	"github.com/BearBump/packtrack/internal/services/packages"
	"github.com/BearBump/packtrack/internal/services/reconcile"
	"github.com/BearBump/packtrack/internal/storage/pgtracking"
	"github.com/BearBump/packtrack/internal/storage/sqlitetracking"
	"github.com/pkg/errors"
)

const (
	defaultQuotaTotal    = models.DefaultMonthlyQuota
	defaultQuotaCacheTTL = 10 * time.Minute
	defaultRatePerSecond = 3
	defaultWatchAddr     = "127.0.0.1:8082"
	defaultConsumerGroup = "packtrack-relay"
	redisPingTimeout     = 2 * time.Second
)

// store is what both storage backends provide.
type store interface {
	packages.Repository
	ApplyUpdate(ctx context.Context, upd models.PackageUpdate) (int, error)
	Ping(ctx context.Context) error
	Close()
}

type publisher interface {
	notify.Publisher
	Close() error
}

type updatesConsumer interface {
	ConsumeUpdates(ctx context.Context, handle func(ctx context.Context, msg messages.PackageUpdated) error) error
	Close() error
}

type factories struct {
	newStore     func(cfg *config.Config) (store, error)
	newCache     func(ctx context.Context, cfg *config.Config) (*rediscache.RedisCache, error)
	newProvider  func(cfg *config.Config, rl seventeentrack.RateLimiter) (provider.Client, error)
	newPublisher func(cfg *config.Config) publisher
	newConsumer  func(cfg *config.Config) updatesConsumer
	newDesktop   func() notify.Notifier
}

func defaultFactories() factories {
	return factories{
		newStore: func(cfg *config.Config) (store, error) {
			switch driver := strings.ToLower(cfg.Storage.Driver); driver {
			case "", "sqlite":
				st, err := sqlitetracking.New(dbPath(cfg), quotaTotal(cfg))
				if err != nil {
					return nil, err
				}
				return st, nil
			case "postgres":
				st, err := pgtracking.New(cfg.Database.ConnString(), quotaTotal(cfg))
				if err != nil {
					return nil, err
				}
				return st, nil
			default:
				return nil, errors.Wrapf(models.ErrConfiguration, "unknown storage driver %q", driver)
			}
		},
		newCache: func(ctx context.Context, cfg *config.Config) (*rediscache.RedisCache, error) {
			if !cfg.Redis.Enabled() {
				return nil, nil
			}
			rc := rediscache.New(rediscache.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.Prefix,
			})
			pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
			defer cancel()
			if err := rc.Ping(pingCtx); err != nil {
				_ = rc.Close()
				return nil, err
			}
			return rc, nil
		},
		newProvider: func(cfg *config.Config, rl seventeentrack.RateLimiter) (provider.Client, error) {
			switch name := strings.ToLower(cfg.Tracker.Provider); name {
			case "", "17track":
				return newSeventeenTrack(cfg, rl), nil
			case "fake":
				return fake.New(quotaTotal(cfg)), nil
			default:
				return nil, errors.Wrapf(models.ErrConfiguration, "unknown tracker provider %q", name)
			}
		},
		newPublisher: func(cfg *config.Config) publisher {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newConsumer: func(cfg *config.Config) updatesConsumer {
			group := cfg.Kafka.ConsumerGroup
			if group == "" {
				group = defaultConsumerGroup
			}
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic(cfg), group)
		},
		newDesktop: func() notify.Notifier {
			return notify.NewDesktopSink()
		},
	}
}

func newSeventeenTrack(cfg *config.Config, rl seventeentrack.RateLimiter) *seventeentrack.Client {
	t := cfg.Tracker
	policy := retry.DefaultPolicy()
	if t.RetryMaxAttempts > 0 {
		policy.MaxAttempts = t.RetryMaxAttempts
	}
	if t.RetryBaseDelayMillis > 0 {
		policy.BaseDelay = time.Duration(t.RetryBaseDelayMillis) * time.Millisecond
	}

	c := seventeentrack.New(t.BaseURL, t.APIKey).
		WithSettings(time.Duration(t.TimeoutSeconds)*time.Second, t.BatchSize, t.Concurrency).
		WithRetryPolicy(policy)
	if rl != nil {
		perSecond := t.RateLimitPerSecond
		if perSecond <= 0 {
			perSecond = defaultRatePerSecond
		}
		c = c.WithRateLimiter(rl, int64(perSecond))
	}
	return c
}

func dbPath(cfg *config.Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return filepath.Join(config.DefaultDataDir(), "packtrack.db")
}

func lockPath(cfg *config.Config) string {
	if cfg.Storage.LockPath != "" {
		return cfg.Storage.LockPath
	}
	return filepath.Join(config.DefaultDataDir(), "packtrack.lock")
}

func quotaTotal(cfg *config.Config) int {
	if cfg.Tracker.QuotaTotal > 0 {
		return cfg.Tracker.QuotaTotal
	}
	return defaultQuotaTotal
}

func topic(cfg *config.Config) string {
	if cfg.Kafka.PackageUpdatedTopicName != "" {
		return cfg.Kafka.PackageUpdatedTopicName
	}
	return messages.TopicPackageUpdated
}

// app is one command's worth of wired dependencies.
type app struct {
	cfg   *config.Config
	f     factories
	store store
	cache *rediscache.RedisCache
	svc   *packages.Service

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, f factories) (*app, error) {
	a := &app{cfg: cfg, f: f}

	st, err := f.newStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	// redis is optional: without it there is no throttle and no quota cache.
	rc, err := f.newCache(ctx, cfg)
	if err != nil {
		slog.Warn("redis unavailable, continuing without it", "addr", cfg.Redis.Addr(), "error", err.Error())
	}
	var rl seventeentrack.RateLimiter
	if rc != nil {
		a.cache = rc
		rl = rc.RateLimiter()
		a.closers = append(a.closers, func() { _ = rc.Close() })
	}

	p, err := f.newProvider(cfg, rl)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine := reconcile.New(p, st)
	a.svc = packages.New(st, p, engine)
	if rc != nil {
		ttl := time.Duration(cfg.Tracker.QuotaCacheTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = defaultQuotaCacheTTL
		}
		a.svc = a.svc.WithSettings(rc, ttl, cfg.Tracker.QuotaWarnThreshold)
	} else {
		a.svc = a.svc.WithSettings(nil, 0, cfg.Tracker.QuotaWarnThreshold)
	}
	return a, nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) acquireLock() (*lock.Lock, error) {
	stale := time.Duration(a.cfg.Storage.LockStaleSeconds) * time.Second
	return lock.Acquire(lockPath(a.cfg), stale)
}

// sinks builds the notification fan-out: stdout always, desktop and kafka
// when configured.
func (a *app) sinks(stdout io.Writer, compact bool) notify.Notifier {
	out := notify.Multi{notify.NewWriterSink(stdout, compact)}
	if a.cfg.Tracker.DesktopNotifications && a.f.newDesktop != nil {
		out = append(out, a.f.newDesktop())
	}
	if a.cfg.Kafka.Enabled() && a.f.newPublisher != nil {
		pub := a.f.newPublisher(a.cfg)
		a.closers = append(a.closers, func() { _ = pub.Close() })
		out = append(out, notify.NewKafkaSink(pub, topic(a.cfg)))
	}
	return out
}
