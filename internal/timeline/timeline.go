// Package timeline holds phoneme timing data produced by extractors.
//
// A Timeline is immutable once built: accessors hand out copies so cached
// timelines can be shared between generations without defensive cloning at
// every call site.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Common errors
var (
	ErrInvalid = errors.New("invalid timeline")
)

// overlapTolerance absorbs float noise from extractors that write
// end == next start with rounding differences.
const overlapTolerance = 1e-9

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// PhonemeEvent is a single phonetic symbol with timing in seconds.
type PhonemeEvent struct {
	Symbol     string  `json:"symbol"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Duration returns the length of the event in seconds.
func (e PhonemeEvent) Duration() float64 {
	return e.End - e.Start
}

// Contains reports whether t falls inside [Start, End).
func (e PhonemeEvent) Contains(t float64) bool {
	return e.Start <= t && t < e.End
}

// Meta carries the descriptive fields of a timeline.
type Meta struct {
	Duration   float64
	SampleRate int
	SymbolSet  string
	Language   string
	Metadata   map[string]string
}

// Timeline is an ordered, non-overlapping sequence of phoneme events.
type Timeline struct {
	events     []PhonemeEvent
	duration   float64
	sampleRate int
	symbolSet  string
	language   string
	metadata   map[string]string
}

// New validates events and builds a Timeline. Events must be ordered by
// start time and must not overlap. A zero duration is replaced by the end
// of the last event.
func New(events []PhonemeEvent, meta Meta) (*Timeline, error) {
	evs := make([]PhonemeEvent, len(events))
	copy(evs, events)

	for i, e := range evs {
		if !finite(e.Start) || !finite(e.End) || !finite(e.Confidence) {
			return nil, fmt.Errorf("%w: event %d (%q) has a non-finite time or confidence", ErrInvalid, i, e.Symbol)
		}
		if e.Start < 0 {
			return nil, fmt.Errorf("%w: event %d (%q) starts before zero", ErrInvalid, i, e.Symbol)
		}
		if e.End < e.Start {
			return nil, fmt.Errorf("%w: event %d (%q) ends before it starts", ErrInvalid, i, e.Symbol)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("%w: event %d (%q) confidence %v outside [0,1]", ErrInvalid, i, e.Symbol, e.Confidence)
		}
		if i == 0 {
			continue
		}
		prev := evs[i-1]
		if e.Start < prev.Start {
			return nil, fmt.Errorf("%w: event %d (%q) is out of order", ErrInvalid, i, e.Symbol)
		}
		if e.Start < prev.End-overlapTolerance {
			return nil, fmt.Errorf("%w: event %d (%q) overlaps event %d", ErrInvalid, i, e.Symbol, i-1)
		}
	}

	if !finite(meta.Duration) {
		return nil, fmt.Errorf("%w: non-finite duration", ErrInvalid)
	}
	if meta.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	if meta.SampleRate < 0 {
		return nil, fmt.Errorf("%w: negative sample rate", ErrInvalid)
	}

	duration := meta.Duration
	if n := len(evs); n > 0 && evs[n-1].End > duration {
		duration = evs[n-1].End
	}

	var md map[string]string
	if len(meta.Metadata) > 0 {
		md = make(map[string]string, len(meta.Metadata))
		for k, v := range meta.Metadata {
			md[k] = v
		}
	}

	return &Timeline{
		events:     evs,
		duration:   duration,
		sampleRate: meta.SampleRate,
		symbolSet:  meta.SymbolSet,
		language:   meta.Language,
		metadata:   md,
	}, nil
}

// MustNew is New for fixtures and built-in data; it panics on invalid input.
func MustNew(events []PhonemeEvent, meta Meta) *Timeline {
	tl, err := New(events, meta)
	if err != nil {
		panic(err)
	}
	return tl
}

// Events returns a copy of the events.
func (t *Timeline) Events() []PhonemeEvent {
	out := make([]PhonemeEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of events.
func (t *Timeline) Len() int { return len(t.events) }

// Event returns the i-th event.
func (t *Timeline) Event(i int) PhonemeEvent { return t.events[i] }

func (t *Timeline) Duration() float64 { return t.duration }
func (t *Timeline) SampleRate() int   { return t.sampleRate }
func (t *Timeline) SymbolSet() string { return t.symbolSet }
func (t *Timeline) Language() string  { return t.language }

// Metadata returns a copy of the free-form metadata.
func (t *Timeline) Metadata() map[string]string {
	if t.metadata == nil {
		return nil
	}
	out := make(map[string]string, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}

// Meta returns the descriptive fields of the timeline.
func (t *Timeline) Meta() Meta {
	return Meta{
		Duration:   t.duration,
		SampleRate: t.sampleRate,
		SymbolSet:  t.symbolSet,
		Language:   t.language,
		Metadata:   t.Metadata(),
	}
}

// EventAt returns the event active at time t, if any.
func (t *Timeline) EventAt(at float64) (PhonemeEvent, bool) {
	i := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].End > at
	})
	if i < len(t.events) && t.events[i].Contains(at) {
		return t.events[i], true
	}
	return PhonemeEvent{}, false
}

// Symbols returns the distinct symbols in order of first appearance.
func (t *Timeline) Symbols() []string {
	seen := make(map[string]struct{}, len(t.events))
	var out []string
	for _, e := range t.events {
		if _, ok := seen[e.Symbol]; ok {
			continue
		}
		seen[e.Symbol] = struct{}{}
		out = append(out, e.Symbol)
	}
	return out
}
