// Package config provides configuration management for visemekit
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/normanking/visemekit/internal/cache"
	"github.com/normanking/visemekit/internal/easing"
	"github.com/normanking/visemekit/internal/engine"
	"github.com/normanking/visemekit/internal/extract"
	"github.com/normanking/visemekit/internal/logging"
	"github.com/normanking/visemekit/internal/track"
	"github.com/normanking/visemekit/internal/viseme"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Animation AnimationConfig `mapstructure:"animation"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Presets   PresetsConfig   `mapstructure:"presets"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AnimationConfig holds the generation defaults
type AnimationConfig struct {
	Preset         string       `mapstructure:"preset"`
	StartFrame     int          `mapstructure:"start_frame"`
	Rate           float64      `mapstructure:"rate"`
	Easing         EasingConfig `mapstructure:"easing"`
	BlendRange     float64      `mapstructure:"blend_range"`
	AutoCreate     bool         `mapstructure:"auto_create"`
	TrackName      string       `mapstructure:"track_name"`
	MergeThreshold float64      `mapstructure:"merge_threshold"` // seconds
	MinHoldFrames  int          `mapstructure:"min_hold_frames"`
}

// EasingConfig enables eased transitions
type EasingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Length  int    `mapstructure:"length"` // frames, 1-30
	Curve   string `mapstructure:"curve"`  // linear, ease_in, ease_out, ease_in_out
}

// CacheConfig selects the timeline cache backend
type CacheConfig struct {
	Backend string            `mapstructure:"backend"` // file, sqlite, redis
	Dir     string            `mapstructure:"dir"`
	Redis   cache.RedisConfig `mapstructure:"redis"`
}

// ExtractorConfig selects the phoneme extractor
type ExtractorConfig struct {
	Name    string                `mapstructure:"name"` // rhubarb, document
	Rhubarb extract.RhubarbConfig `mapstructure:"rhubarb"`
}

// PresetsConfig locates user preset documents
type PresetsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures logging
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, err := GetConfigDir()
	if err != nil {
		dir = ".visemekit"
	}
	return &Config{
		Animation: AnimationConfig{
			Preset:     viseme.PresetPrestonBlair,
			StartFrame: 1,
			Rate:       24,
			Easing: EasingConfig{
				Enabled: false,
				Length:  3,
				Curve:   easing.EaseInOut.String(),
			},
			TrackName: track.DefaultName,
		},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			Dir:     filepath.Join(dir, "cache"),
			Redis: cache.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: cache.DefaultRedisPrefix,
			},
		},
		Extractor: ExtractorConfig{
			Name:    extract.RhubarbID,
			Rhubarb: extract.DefaultRhubarbConfig(),
		},
		Presets: PresetsConfig{
			Dir: filepath.Join(dir, "presets"),
		},
		Log: LogConfig{
			Level:   string(logging.LevelInfo),
			Dir:     filepath.Join(dir, "logs"),
			Console: true,
			File:    true,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// values flattens cfg into viper keys.
func values(cfg *Config) map[string]any {
	return map[string]any{
		"animation.preset":          cfg.Animation.Preset,
		"animation.start_frame":     cfg.Animation.StartFrame,
		"animation.rate":            cfg.Animation.Rate,
		"animation.easing.enabled":  cfg.Animation.Easing.Enabled,
		"animation.easing.length":   cfg.Animation.Easing.Length,
		"animation.easing.curve":    cfg.Animation.Easing.Curve,
		"animation.blend_range":     cfg.Animation.BlendRange,
		"animation.auto_create":     cfg.Animation.AutoCreate,
		"animation.track_name":      cfg.Animation.TrackName,
		"animation.merge_threshold": cfg.Animation.MergeThreshold,
		"animation.min_hold_frames": cfg.Animation.MinHoldFrames,

		"cache.backend":        cfg.Cache.Backend,
		"cache.dir":            cfg.Cache.Dir,
		"cache.redis.addr":     cfg.Cache.Redis.Addr,
		"cache.redis.password": cfg.Cache.Redis.Password,
		"cache.redis.db":       cfg.Cache.Redis.DB,
		"cache.redis.prefix":   cfg.Cache.Redis.Prefix,

		"extractor.name":                    cfg.Extractor.Name,
		"extractor.rhubarb.binary":          cfg.Extractor.Rhubarb.Binary,
		"extractor.rhubarb.recognizer":      cfg.Extractor.Rhubarb.Recognizer,
		"extractor.rhubarb.extended_shapes": cfg.Extractor.Rhubarb.ExtendedShapes,
		"extractor.rhubarb.timeout":         cfg.Extractor.Rhubarb.Timeout.String(),

		"presets.dir": cfg.Presets.Dir,

		"log.level":   cfg.Log.Level,
		"log.dir":     cfg.Log.Dir,
		"log.console": cfg.Log.Console,
		"log.file":    cfg.Log.File,

		"metrics.addr": cfg.Metrics.Addr,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range values(DefaultConfig()) {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("VISEMEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path, or from config.yaml in the config
// directory or the working directory when path is empty. Environment
// variables (VISEMEKIT_CACHE_BACKEND, ...) override the file. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	v := viper.New()
	for k, val := range values(cfg) {
		v.Set(k, val)
	}
	return v.WriteConfigAs(path)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".visemekit"), nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if _, err := c.Animation.Options(); err != nil {
		return fmt.Errorf("%w: animation: %w", ErrInvalid, err)
	}

	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendSQLite:
		if c.Cache.Dir == "" {
			return fmt.Errorf("%w: cache.dir is required for the %s backend", ErrInvalid, c.Cache.Backend)
		}
	case cache.BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: cache.redis.addr is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalid, c.Cache.Backend)
	}

	switch c.Extractor.Name {
	case extract.RhubarbID, extract.DocumentID:
	default:
		return fmt.Errorf("%w: unknown extractor %q", ErrInvalid, c.Extractor.Name)
	}

	switch logging.LogLevel(strings.ToLower(c.Log.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// Options converts the animation settings to engine options.
func (a AnimationConfig) Options() (engine.Options, error) {
	opts := engine.Options{
		StartFrame:     a.StartFrame,
		Rate:           a.Rate,
		BlendRange:     a.BlendRange,
		AutoCreate:     a.AutoCreate,
		TrackName:      a.TrackName,
		MergeThreshold: a.MergeThreshold,
		MinHoldFrames:  a.MinHoldFrames,
	}
	if a.Easing.Enabled {
		curve, err := easing.ParseCurve(a.Easing.Curve)
		if err != nil {
			return engine.Options{}, err
		}
		opts.Easing = &easing.Options{Length: a.Easing.Length, Curve: curve}
	}
	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

// CacheOptions converts the cache settings for cache.Open.
func (c CacheConfig) CacheOptions() cache.Options {
	return cache.Options{Backend: c.Backend, Dir: c.Dir, Redis: c.Redis}
}

// Logging converts the log settings for logging.New.
func (l LogConfig) Logging() *logging.Config {
	return &logging.Config{
		LogDir:     l.Dir,
		Level:      logging.LogLevel(strings.ToLower(l.Level)),
		MaxHistory: 1000,
		Console:    l.Console,
		File:       l.File,
	}
}
