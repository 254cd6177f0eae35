package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/amenagements/internal/cacheinval"
	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/database"
	"github.com/dharsanguruparan/amenagements/internal/mailer"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/repository"
	"github.com/dharsanguruparan/amenagements/internal/s3storage"
	"github.com/dharsanguruparan/amenagements/internal/signing"
)

// CachePrefix namespaces the tag cache keys.
const CachePrefix = "amenagements:cache:"

// Adapters are the production gateways opened from the configuration.
type Adapters struct {
	Deps
	Repo    *repository.Repository
	Storage *s3storage.Storage
	pool    *pgxpool.Pool
	cache   *redis.Client
}

// RedisOpt returns the asynq connection options of the task queues.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// Open connects Postgres, the object store, SMTP and the caches.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Adapters, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	store, err := s3storage.New(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	mail, err := mailer.New(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.CacheRedisDB})
	refs := cacheinval.NewHTTPInvalidator(cfg.HTTPCacheURL, &http.Client{Timeout: 10 * time.Second},
		signing.NewSigner(cfg.SigningSecret), cfg.SignedTTL, cfg.HTTPCacheRPS)

	repo := repository.New(pool)
	return &Adapters{
		Deps: Deps{
			Config:  cfg,
			Store:   repo,
			Files:   store,
			Mail:    mail,
			Tags:    cacheinval.NewTagCache(cache, CachePrefix),
			Refs:    refs,
			Logger:  logger,
			Metrics: m,
		},
		Repo:    repo,
		Storage: store,
		pool:    pool,
		cache:   cache,
	}, nil
}

// Pool returns the Postgres pool.
func (a *Adapters) Pool() *pgxpool.Pool { return a.pool }

// Close releases the connections.
func (a *Adapters) Close() {
	_ = a.cache.Close()
	a.pool.Close()
}
