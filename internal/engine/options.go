package engine

import (
	"math"

	"github.com/normanking/visemekit/internal/easing"
)

// Options configures one Generate call.
type Options struct {
	// StartFrame is the frame time zero maps to.
	StartFrame int
	// Rate is frames per second.
	Rate float64

	// Easing enables eased transition bindings. Nil means discrete.
	Easing *easing.Options
	// BlendRange enables triangular falloff bindings when positive.
	// It cannot be combined with Easing.
	BlendRange float64

	// AutoCreate allows Generate to create a track when none is passed.
	AutoCreate bool
	// TrackName names an auto-created track.
	TrackName string

	// Assign pins classes to target refs, overriding hint matching for
	// those classes.
	Assign map[int][]string

	// MergeThreshold drops events starting less than this many seconds
	// after the previously kept event.
	MergeThreshold float64
	// MinHoldFrames drops keyframes closer than this to the previously
	// kept keyframe.
	MinHoldFrames int
}

// DefaultOptions returns discrete generation at 24 fps from frame 1.
func DefaultOptions() Options {
	return Options{
		StartFrame: 1,
		Rate:       24,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Rate <= 0 || math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0) {
		return &ValidationError{Reason: "frame rate must be positive"}
	}
	if o.Easing != nil {
		if err := o.Easing.Validate(); err != nil {
			return &ValidationError{Reason: "invalid easing", Err: err}
		}
		if o.BlendRange > 0 {
			return &ValidationError{Reason: "easing and blend range cannot be combined"}
		}
	}
	if o.BlendRange < 0 || math.IsNaN(o.BlendRange) {
		return &ValidationError{Reason: "blend range must not be negative"}
	}
	if o.MergeThreshold < 0 || math.IsNaN(o.MergeThreshold) {
		return &ValidationError{Reason: "merge threshold must not be negative"}
	}
	if o.MinHoldFrames < 0 {
		return &ValidationError{Reason: "min hold frames must not be negative"}
	}
	for class := range o.Assign {
		if class < 0 {
			return &ValidationError{Reason: "assignment to negative class"}
		}
	}
	return nil
}

// Mode names the binding expression family the options select.
func (o Options) Mode() string {
	switch {
	case o.Easing != nil:
		return "eased"
	case o.BlendRange > 0:
		return "falloff"
	default:
		return "discrete"
	}
}
