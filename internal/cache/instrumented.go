package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/normanking/visemekit/internal/metrics"
	"github.com/normanking/visemekit/internal/timeline"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Dir     string
	Redis   RedisConfig
}

// Open creates the configured backend wrapped with metrics and logging.
func Open(opts Options, logger zerolog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case "", BackendFile:
		store, err = NewFileStore(opts.Dir)
	case BackendSQLite:
		store, err = NewSQLiteStore(filepath.Join(opts.Dir, "cache.db"))
	case BackendRedis:
		store, err = NewRedisStore(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendFile
	}
	return Instrument(store, backend, logger), nil
}

// Instrumented records hit/miss/corrupt counts and logs corrupt entries.
type Instrumented struct {
	Store
	backend string
	logger  zerolog.Logger
}

// Instrument wraps store.
func Instrument(store Store, backend string, logger zerolog.Logger) *Instrumented {
	return &Instrumented{
		Store:   store,
		backend: backend,
		logger:  logger.With().Str("component", "cache").Str("backend", backend).Logger(),
	}
}

// Get records the lookup result.
func (s *Instrumented) Get(ctx context.Context, key Key) (*timeline.Timeline, error) {
	tl, err := s.Store.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheRequests.WithLabelValues(s.backend, "hit").Inc()
		s.logger.Debug().Str("key", key.Short()).Msg("Cache hit")
	case IsCorrupt(err):
		metrics.CacheRequests.WithLabelValues(s.backend, "corrupt").Inc()
		s.logger.Warn().Err(err).Str("key", key.Short()).Msg("Corrupt cache entry treated as miss")
	case errors.Is(err, ErrMiss):
		metrics.CacheRequests.WithLabelValues(s.backend, "miss").Inc()
	default:
		metrics.CacheRequests.WithLabelValues(s.backend, "error").Inc()
	}
	return tl, err
}

// Put records the write status.
func (s *Instrumented) Put(ctx context.Context, key Key, tl *timeline.Timeline) error {
	err := s.Store.Put(ctx, key, tl)
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Warn().Err(err).Str("key", key.Short()).Msg("Cache write failed")
	}
	metrics.CacheWrites.WithLabelValues(s.backend, status).Inc()
	return err
}
