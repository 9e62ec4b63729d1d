package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/config"
	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/imaging"
	"github.com/ironsheep/image-pipeline/internal/logging"
)

// runtimeState is the state shared by the commands that build chains.
type runtimeState struct {
	cfg      *config.Config
	log      *zap.Logger
	tiles    *cache.Cache
	sources  *imaging.SourceCache
	registry *filter.Registry
}

func setup() (*runtimeState, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	logging.Set(log)

	opts, err := cfg.CacheOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = log.Named("cache")
	tiles, err := cache.New(opts)
	if err != nil {
		return nil, err
	}

	sources := imaging.NewSourceCache(tiles)
	reg := filter.Builtin(filter.Options{Sources: sources})
	if len(cfg.Pipeline.Adapters) > 0 {
		if err := reg.SetAdapters(cfg.Pipeline.Adapters...); err != nil {
			return nil, fmt.Errorf("pipeline.adapters: %w", err)
		}
	}

	log.Debug("configuration loaded",
		zap.Int("cache_mb", cfg.Cache.MemoryMB),
		zap.Stringer("strategy", opts.Strategy),
		zap.Int("workers", cfg.Render.Workers),
		zap.Int("max_insert", cfg.Pipeline.MaxInsert))

	return &runtimeState{
		cfg:      cfg,
		log:      log,
		tiles:    tiles,
		sources:  sources,
		registry: reg,
	}, nil
}
