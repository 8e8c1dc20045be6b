package commands

import (
	"context"
	"fmt"

	"github.com/wonny/quantsnap/internal/marketdata"
	"github.com/wonny/quantsnap/internal/metrics"
	"github.com/wonny/quantsnap/internal/pipeline"
	"github.com/wonny/quantsnap/internal/pipelineconfig"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/internal/universe"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
	"github.com/wonny/quantsnap/pkg/redis"
)

// app holds the wired dependencies shared by commands
type app struct {
	env      *config.Config
	pipeline *pipelineconfig.Config
	logger   *logger.Logger
	store    storage.Store
	redis    *redis.Client
	metrics  *metrics.Metrics
}

// loadEnv reads the environment layer and builds the logger
func loadEnv() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if pipelineConfigPath != "" {
		cfg.PipelineConfigPath = pipelineConfigPath
	}
	return cfg, logger.New(cfg), nil
}

// loadPipelineConfig reads and validates the YAML file
func loadPipelineConfig(path string) (*pipelineconfig.Config, error) {
	cfg, _, err := pipelineconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := pipelineconfig.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads both config layers and opens the store
func newApp(ctx context.Context) (*app, error) {
	env, log, err := loadEnv()
	if err != nil {
		return nil, err
	}

	pcfg, err := loadPipelineConfig(env.PipelineConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, env.Database, storage.Options{RetentionDays: pcfg.Storage.RetentionDays}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rc, err := redis.New(ctx, env.Redis)
	if err != nil {
		// cache only; the pipeline works without it
		log.WithError(err).Warn("Redis unavailable, running without cache")
		rc, _ = redis.New(ctx, config.RedisConfig{})
	}

	return &app{
		env:      env,
		pipeline: pcfg,
		logger:   log,
		store:    store,
		redis:    rc,
		metrics:  metrics.New(),
	}, nil
}

// cache returns nil when Redis is disabled so sources are not wrapped
func (a *app) cache() *redis.Cache {
	if !a.redis.Enabled() {
		return nil
	}
	return redis.NewCache(a.redis, "quant")
}

// orchestrator wires sources, the universe resolver and the store
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	httpClient := httputil.New(a.env, a.logger)
	cache := a.cache()

	sources, err := marketdata.NewSources(pipelineconfig.KnownSources, httpClient, cache, a.env.Redis.TTL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	var membership universe.MembershipSource = universe.NewWikipediaSource(httpClient, a.logger)
	if cache != nil {
		membership = universe.NewCachedMembership(membership, cache, a.logger)
	}
	resolver := universe.NewResolver(membership, universe.NewNasdaqTraderSource(httpClient, a.logger), a.logger)

	return pipeline.NewOrchestrator(resolver, sources, a.store, a.metrics, a.logger), nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
	_ = a.redis.Close()
}
