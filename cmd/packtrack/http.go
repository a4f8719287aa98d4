package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/packtrack/config"
	"github.com/BearBump/packtrack/internal/services/poller"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed swagger.json
var swaggerJSON []byte

type pinger interface {
	Ping(ctx context.Context) error
}

type watchHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	poller *poller.Poller
	store  pinger
	cfg    *config.Config
}

func newWatchRouter(opts watchHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.store.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.poller == nil {
			_, _ = w.Write([]byte(`{"error":"poller not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.poller.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// без секретов: ключ 17track и пароли наружу не отдаём
		t := opts.cfg.Tracker
		out := map[string]any{
			"storageDriver":        storageDriver(opts.cfg),
			"provider":             providerName(opts.cfg),
			"apiKeySet":            t.APIKey != "",
			"batchSize":            t.BatchSize,
			"concurrency":          t.Concurrency,
			"timeoutSeconds":       t.TimeoutSeconds,
			"rateLimitPerSecond":   t.RateLimitPerSecond,
			"quotaTotal":           quotaTotal(opts.cfg),
			"quotaWarnThreshold":   t.QuotaWarnThreshold,
			"watchIntervalSeconds": t.WatchIntervalSeconds,
			"desktopNotifications": t.DesktopNotifications,
			"redisEnabled":         opts.cfg.Redis.Enabled(),
			"kafkaEnabled":         opts.cfg.Kafka.Enabled(),
			"kafkaTopic":           topic(opts.cfg),
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.poller == nil {
			_, _ = w.Write([]byte(`{"error":"poller not wired"}`))
			return
		}
		opts.poller.Trigger()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(swaggerJSON)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))

	return r
}

func runWatchHTTPServer(ctx context.Context, opts watchHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = defaultWatchAddr
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWatchRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func storageDriver(cfg *config.Config) string {
	if cfg.Storage.Driver == "" {
		return "sqlite"
	}
	return cfg.Storage.Driver
}

func providerName(cfg *config.Config) string {
	if cfg.Tracker.Provider == "" {
		return "17track"
	}
	return cfg.Tracker.Provider
}
