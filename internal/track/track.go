// Package track implements the controller track: a single discrete-valued
// animation channel that every bound target reads from.
//
// Keyframes use step interpolation. The value holds constant from one
// keyframe to the next and consecutive keyframes never share a class.
package track

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/normanking/visemekit/internal/binding"
)

// Common errors
var (
	ErrOutOfOrder   = errors.New("keyframe before last keyframe")
	ErrInvalidRate  = errors.New("frame rate must be positive")
	ErrNegativeTime = errors.New("negative event time")
)

// Keyframe is one step of the controller channel.
type Keyframe struct {
	Frame int `json:"frame"`
	Class int `json:"class"`
}

// Quantize converts seconds to a frame number: round(t*rate) + startFrame.
// Halves round to even.
func Quantize(t, rate float64, startFrame int) int {
	return int(math.RoundToEven(t*rate)) + startFrame
}

// Track is one controller channel. It is safe for concurrent readers; the
// engine is its only writer.
type Track struct {
	mu sync.RWMutex

	id   string
	name string

	rate       float64
	startFrame int
	keys       []Keyframe

	bindings *binding.Set
	props    Properties
}

// New creates a detached track. Most callers use Registry.Create.
func New(id, name string, props Properties) *Track {
	if props == nil {
		props = NewMemoryProperties()
	}
	return &Track{
		id:         id,
		name:       name,
		rate:       24,
		startFrame: 1,
		bindings:   &binding.Set{},
		props:      props,
	}
}

func (t *Track) ID() string   { return t.id }
func (t *Track) Name() string { return t.name }

// Properties returns the host property store attached to the track.
func (t *Track) Properties() Properties { return t.props }

// Configure sets the rate and start frame used by AddEvent and ValueAtTime.
func (t *Track) Configure(rate float64, startFrame int) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = rate
	t.startFrame = startFrame
	return nil
}

// Rate returns the frames per second of the last configuration.
func (t *Track) Rate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rate
}

// StartFrame returns the frame that time zero maps to.
func (t *Track) StartFrame() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startFrame
}

// AddEvent quantizes at to a frame and inserts a keyframe for class.
// It reports whether a keyframe was written; a class equal to the one
// already held is collapsed.
func (t *Track) AddEvent(at float64, class int) (bool, error) {
	if at < 0 {
		return false, fmt.Errorf("%w: %v", ErrNegativeTime, at)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addKeyframe(Quantize(at, t.rate, t.startFrame), class)
}

// AddKeyframe inserts a keyframe at an explicit frame.
func (t *Track) AddKeyframe(frame, class int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addKeyframe(frame, class)
}

func (t *Track) addKeyframe(frame, class int) (bool, error) {
	n := len(t.keys)
	if n == 0 {
		t.keys = append(t.keys, Keyframe{Frame: frame, Class: class})
		return true, nil
	}

	last := &t.keys[n-1]
	switch {
	case frame < last.Frame:
		return false, fmt.Errorf("%w: frame %d after %d", ErrOutOfOrder, frame, last.Frame)
	case frame == last.Frame:
		// Two events quantized onto one frame: the later one wins.
		last.Class = class
		if n > 1 && t.keys[n-2].Class == class {
			t.keys = t.keys[:n-1]
		}
		return true, nil
	case last.Class == class:
		return false, nil
	}

	t.keys = append(t.keys, Keyframe{Frame: frame, Class: class})
	return true, nil
}

// Clear removes every keyframe.
func (t *Track) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = nil
}

// Keyframes returns a copy of the keyframes in frame order.
func (t *Track) Keyframes() []Keyframe {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Keyframe, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of keyframes.
func (t *Track) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// ValueAt returns the class held at frame. Frames before the first keyframe
// hold the first keyframe's class; an empty track holds 0.
func (t *Track) ValueAt(frame int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return valueAt(t.keys, frame)
}

// ValueAtTime quantizes at and returns the class held at that frame.
func (t *Track) ValueAtTime(at float64) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return valueAt(t.keys, Quantize(at, t.rate, t.startFrame))
}

func valueAt(keys []Keyframe, frame int) int {
	if len(keys) == 0 {
		return 0
	}
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Frame > frame })
	if i == 0 {
		return keys[0].Class
	}
	return keys[i-1].Class
}

// FrameRange returns the first and last keyframe frames.
func (t *Track) FrameRange() (first, last int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.keys) == 0 {
		return 0, 0, false
	}
	return t.keys[0].Frame, t.keys[len(t.keys)-1].Frame, true
}

// Bindings returns a copy of the bindings this track currently owns.
func (t *Track) Bindings() *binding.Set {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bindings.Clone()
}

// SetBindings replaces the owned binding set.
func (t *Track) SetBindings(s *binding.Set) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == nil {
		s = &binding.Set{}
	}
	t.bindings = s.Clone()
}

// State is a point-in-time copy of a track, used for rollback.
type State struct {
	Rate       float64
	StartFrame int
	Keyframes  []Keyframe
	Bindings   *binding.Set
	Properties map[string]string
}

// Snapshot captures the track state.
func (t *Track) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]Keyframe, len(t.keys))
	copy(keys, t.keys)
	return State{
		Rate:       t.rate,
		StartFrame: t.startFrame,
		Keyframes:  keys,
		Bindings:   t.bindings.Clone(),
		Properties: snapshotProperties(t.props),
	}
}

// Restore puts the track back into a captured state.
func (t *Track) Restore(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = s.Rate
	t.startFrame = s.StartFrame
	t.keys = make([]Keyframe, len(s.Keyframes))
	copy(t.keys, s.Keyframes)
	t.bindings = s.Bindings.Clone()
	restoreProperties(t.props, s.Properties)
}
