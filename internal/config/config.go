// Package config loads the image-pipeline configuration from an optional
// YAML file and IMAGE_PIPELINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/pipeline"
)

// EnvPrefix prefixes environment overrides, e.g. IMAGE_PIPELINE_CACHE_MEMORY_MB.
const EnvPrefix = "IMAGE_PIPELINE"

// Config is the complete runtime configuration.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Render   RenderConfig   `mapstructure:"render"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CacheConfig configures the tile cache.
type CacheConfig struct {
	MemoryMB int    `mapstructure:"memory_mb"`
	Strategy string `mapstructure:"strategy"`
	Samples  int    `mapstructure:"samples"`
	Seed     int64  `mapstructure:"seed"`
}

// RenderConfig configures the render coordinator.
type RenderConfig struct {
	Workers int `mapstructure:"workers"`
}

// PipelineConfig configures chain configuration.
type PipelineConfig struct {
	MaxInsert int `mapstructure:"max_insert"`
	// Adapters overrides the insertion catalog, in trial order.
	Adapters []string `mapstructure:"adapters"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the configuration. path names a config file; when empty,
// image-pipeline.yaml is looked up in the working directory and a missing
// file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("image-pipeline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.memory_mb", 100)
	v.SetDefault("cache.strategy", "napx")
	v.SetDefault("cache.samples", cache.DefaultSamples)
	v.SetDefault("cache.seed", 0)
	v.SetDefault("render.workers", runtime.GOMAXPROCS(0))
	v.SetDefault("pipeline.max_insert", pipeline.DefaultMaxInsert)
	v.SetDefault("pipeline.adapters", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.addr", "")
}

// Validate checks value ranges and parses the cache strategy.
func (c *Config) Validate() error {
	if c.Cache.MemoryMB <= 0 {
		return fmt.Errorf("cache.memory_mb must be positive, got: %d", c.Cache.MemoryMB)
	}
	if _, err := cache.ParseStrategy(c.Cache.Strategy); err != nil {
		return fmt.Errorf("cache.strategy: %w", err)
	}
	if c.Cache.Samples < 0 {
		return fmt.Errorf("cache.samples must not be negative, got: %d", c.Cache.Samples)
	}
	if c.Render.Workers <= 0 {
		return fmt.Errorf("render.workers must be positive, got: %d", c.Render.Workers)
	}
	if c.Pipeline.MaxInsert < 0 {
		return fmt.Errorf("pipeline.max_insert must not be negative, got: %d", c.Pipeline.MaxInsert)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// CacheOptions converts the cache section into cache.Options.
func (c *Config) CacheOptions() (cache.Options, error) {
	s, err := cache.ParseStrategy(c.Cache.Strategy)
	if err != nil {
		return cache.Options{}, err
	}
	return cache.Options{
		MemoryMB: c.Cache.MemoryMB,
		Strategy: s,
		Samples:  c.Cache.Samples,
		Seed:     c.Cache.Seed,
	}, nil
}
