// Package analysis runs phonetic extraction behind the timeline cache.
//
// An analysis looks the audio up by content key, runs the extractor on a
// miss and stores the result. Jobs started with Start run on their own
// goroutine and can be cancelled; a cancelled job never writes the cache.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/visemekit/internal/bus"
	"github.com/normanking/visemekit/internal/cache"
	"github.com/normanking/visemekit/internal/extract"
	"github.com/normanking/visemekit/internal/metrics"
	"github.com/normanking/visemekit/internal/timeline"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("analysis job not found")

// Outcome is the result of one analysis.
type Outcome struct {
	Key      cache.Key
	Timeline *timeline.Timeline
	CacheHit bool
	// Stored is false when the cache write failed; the timeline is still
	// usable.
	Stored   bool
	Duration time.Duration
}

// Analyzer combines a cache and an extractor.
type Analyzer struct {
	store     cache.Store
	extractor extract.Extractor
	events    *bus.EventBus
	logger    zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// New creates an analyzer. events may be nil.
func New(store cache.Store, extractor extract.Extractor, events *bus.EventBus, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:     store,
		extractor: extractor,
		events:    events,
		logger:    logger.With().Str("component", "analysis").Str("extractor", extractor.ID()).Logger(),
		jobs:      make(map[string]*Job),
	}
}

// Key returns the cache key of the audio at path under this analyzer's
// extractor and configuration.
func (a *Analyzer) Key(path string) (cache.Key, error) {
	return cache.KeyFromFile(path, a.extractor.ID(), a.extractor.Config())
}

// Analyze returns the timeline for path, from the cache when possible.
func (a *Analyzer) Analyze(ctx context.Context, path string) (Outcome, error) {
	start := time.Now()

	key, err := a.Key(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", extract.ErrNoInput, err)
	}
	out := Outcome{Key: key}

	tl, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		out.Timeline = tl
		out.CacheHit = true
		out.Stored = true
		out.Duration = time.Since(start)
		return out, nil
	case errors.Is(err, cache.ErrMiss):
	default:
		a.logger.Warn().Err(err).Str("key", key.Short()).Msg("Cache lookup failed, extracting")
	}

	extractStart := time.Now()
	tl, err = a.extractor.Extract(ctx, path)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ExtractionDuration.WithLabelValues(a.extractor.ID(), status).Observe(time.Since(extractStart).Seconds())
	if err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	out.Timeline = tl
	if err := a.store.Put(ctx, key, tl); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		a.logger.Warn().Err(err).Str("key", key.Short()).Msg("Timeline not cached")
	} else {
		out.Stored = true
	}
	out.Duration = time.Since(start)
	return out, nil
}

// Callback receives the result of a job started with Start.
type Callback func(*Job, Outcome, error)

// Job is a running or finished analysis.
type Job struct {
	ID      string
	Path    string
	Started time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
	err     error
}

// Cancel stops the job. It is safe to call more than once.
func (j *Job) Cancel() { j.cancel() }

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns its result.
func (j *Job) Wait() (Outcome, error) {
	<-j.done
	return j.outcome, j.err
}

// Start runs Analyze on a goroutine. cb, when set, is called once the job
// has finished.
func (a *Analyzer) Start(ctx context.Context, path string, cb Callback) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:      uuid.New().String(),
		Path:    path,
		Started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	a.mu.Lock()
	a.jobs[job.ID] = job
	a.mu.Unlock()

	metrics.ActiveJobs.Inc()
	a.publish(bus.EventTypeAnalysisStarted, job, nil)
	a.logger.Info().Str("job", job.ID).Str("path", path).Msg("Analysis started")

	go func() {
		defer cancel()
		out, err := a.Analyze(ctx, path)

		job.outcome, job.err = out, err
		a.finish(job)
		close(job.done)

		if cb != nil {
			cb(job, out, err)
		}
	}()
	return job
}

func (a *Analyzer) finish(job *Job) {
	a.mu.Lock()
	delete(a.jobs, job.ID)
	a.mu.Unlock()
	metrics.ActiveJobs.Dec()

	log := a.logger.With().Str("job", job.ID).Str("path", job.Path).Logger()
	switch {
	case errors.Is(job.err, context.Canceled) || errors.Is(job.err, context.DeadlineExceeded):
		metrics.AnalysisJobs.WithLabelValues("cancelled").Inc()
		a.publish(bus.EventTypeAnalysisCancelled, job, nil)
		log.Info().Msg("Analysis cancelled")
	case job.err != nil:
		metrics.AnalysisJobs.WithLabelValues("failed").Inc()
		a.publish(bus.EventTypeAnalysisFailed, job, map[string]any{"error": job.err.Error()})
		log.Error().Err(job.err).Msg("Analysis failed")
	case job.outcome.CacheHit:
		metrics.AnalysisJobs.WithLabelValues("cached").Inc()
		a.publish(bus.EventTypeAnalysisCacheHit, job, map[string]any{"key": job.outcome.Key.String()})
		log.Info().Str("key", job.outcome.Key.Short()).Msg("Analysis served from cache")
	default:
		metrics.AnalysisJobs.WithLabelValues("extracted").Inc()
		a.publish(bus.EventTypeAnalysisCompleted, job, map[string]any{
			"key":    job.outcome.Key.String(),
			"events": job.outcome.Timeline.Len(),
			"stored": job.outcome.Stored,
		})
		log.Info().
			Str("key", job.outcome.Key.Short()).
			Int("events", job.outcome.Timeline.Len()).
			Dur("duration", job.outcome.Duration).
			Msg("Analysis completed")
	}
}

func (a *Analyzer) publish(t bus.EventType, job *Job, data map[string]any) {
	if a.events == nil {
		return
	}
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["job"] = job.ID
	data["path"] = job.Path
	a.events.Publish(bus.NewEvent(t, data))
}

// Jobs returns the running jobs, oldest first.
func (a *Analyzer) Jobs() []*Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Job, 0, len(a.jobs))
	for _, j := range a.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Cancel stops the running job with id.
func (a *Analyzer) Cancel(id string) error {
	a.mu.Lock()
	job, ok := a.jobs[id]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.Cancel()
	return nil
}
