package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/api"
	"github.com/latticesocial/lattice/internal/config"
	"github.com/latticesocial/lattice/internal/content"
	"github.com/latticesocial/lattice/internal/events"
	"github.com/latticesocial/lattice/internal/exp"
	"github.com/latticesocial/lattice/internal/feed"
	"github.com/latticesocial/lattice/internal/identity"
	"github.com/latticesocial/lattice/internal/ids"
	"github.com/latticesocial/lattice/internal/metrics"
	"github.com/latticesocial/lattice/internal/middleware"
	"github.com/latticesocial/lattice/internal/noncecache"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/spam"
	"github.com/latticesocial/lattice/internal/store"
	"github.com/latticesocial/lattice/pkg/didkey"
)

// shutdownGrace bounds how long in-flight requests may drain after SIGTERM.
const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := newLogger(cfg)
	log := logger.WithField("service", "lattice-api")

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("run migrations")
	}

	nonces, err := newNonceCache(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("build nonce cache")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	gen := ids.NewULIDGenerator()
	bus := events.NewBus(m, logger.WithField("component", "events"))
	stream := events.NewStream(bus, cfg.OriginAllowed, m, logger.WithField("component", "stream"))

	ledger := exp.NewService(st, gen, m, logger.WithField("component", "exp"))
	limiter := ratelimit.New(st, logger.WithField("component", "ratelimit"))
	detector := spam.NewDetector(st, logger.WithField("component", "spam"))

	deps := api.Deps{
		Store:    st,
		Identity: identity.NewService(st, gen, bus, m, logger.WithField("component", "identity")),
		Content:  content.NewService(st, detector, limiter, ledger, gen, bus, m, logger.WithField("component", "content")),
		Feed:     feed.NewService(st),
		Reports:  spam.NewReportService(st, ledger, limiter, gen, bus, m, logger.WithField("component", "reports")),
		EXP:      ledger,
		Auth:     middleware.NewAuthenticator(st, nonces, m, logger.WithField("component", "auth")),
		Stream:   stream,
		Metrics:  m,
	}

	go limiter.RunSweeper(ctx, cfg.RateSweepInterval)

	srv := api.New(cfg, deps, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining")
	case err := <-errCh:
		log.WithError(err).Fatal("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
	log.Info("server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// newNonceCache picks the replay-protection backend. A single instance runs
// on the in-process LRU; anything behind a load balancer needs redis so all
// replicas see the same nonce set.
func newNonceCache(cfg *config.Config, log *logrus.Entry) (noncecache.Cache, error) {
	ttl := time.Duration(didkey.TimestampWindow) * time.Millisecond

	switch cfg.NonceBackend {
	case config.NonceBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("nonce cache on redis")
		return noncecache.NewRedis(client, ttl), nil
	default:
		log.WithField("size", cfg.NonceCacheSize).Info("nonce cache in memory")
		return noncecache.NewMemory(cfg.NonceCacheSize, ttl)
	}
}
