// Package easing expands controller keyframes into complementary transition
// weights, so a target fades out while the next one fades in instead of
// snapping on the keyframe frame.
package easing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/visemekit/internal/binding"
	"github.com/normanking/visemekit/internal/track"
)

// Transition length bounds in frames.
const (
	MinLength = 1
	MaxLength = 30
)

// Common errors
var (
	ErrInvalidLength = errors.New("transition length out of range")
	ErrUnknownCurve  = errors.New("unknown easing curve")
)

// Curve is an easing function family.
type Curve int

const (
	Linear Curve = iota
	EaseIn
	EaseOut
	EaseInOut
)

var curveNames = map[Curve]string{
	Linear:    "linear",
	EaseIn:    "ease_in",
	EaseOut:   "ease_out",
	EaseInOut: "ease_in_out",
}

func (c Curve) String() string {
	if n, ok := curveNames[c]; ok {
		return n
	}
	return fmt.Sprintf("curve(%d)", int(c))
}

// ParseCurve accepts curve names with '_', '-' or no separator.
func ParseCurve(s string) (Curve, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)
	for c, name := range curveNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return c, nil
		}
	}
	return Linear, fmt.Errorf("%w: %q", ErrUnknownCurve, s)
}

// Apply evaluates the curve at t, clamped to [0, 1].
func (c Curve) Apply(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	switch c {
	case EaseIn:
		return t * t
	case EaseOut:
		u := 1 - t
		return 1 - u*u
	case EaseInOut:
		if t < 0.5 {
			return 4 * t * t * t
		}
		u := -2*t + 2
		return 1 - u*u*u/2
	default:
		return t
	}
}

// Options configures the expander.
type Options struct {
	Length int   `json:"length" mapstructure:"length"`
	Curve  Curve `json:"curve" mapstructure:"curve"`
}

// Validate checks the transition length bounds and curve.
func (o Options) Validate() error {
	if o.Length < MinLength || o.Length > MaxLength {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLength, o.Length, MinLength, MaxLength)
	}
	if _, ok := curveNames[o.Curve]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCurve, int(o.Curve))
	}
	return nil
}

// Transition is one blended class change. Outgoing[i] and Incoming[i] are
// the weights at Frame+i for i in [0, Length].
type Transition struct {
	Frame    int       `json:"frame"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Length   int       `json:"length"`
	Outgoing []float64 `json:"outgoing"`
	Incoming []float64 `json:"incoming"`
}

// Expansion is the set of transitions generated for a keyframe sequence.
type Expansion struct {
	Transitions []Transition
}

// Expand builds transitions for every class change in keys. A transition
// at frame f lasts min(Length, next keyframe - f, endFrame - f) frames and
// is skipped when that is below one frame. The first keyframe has nothing
// to blend from.
func Expand(keys []track.Keyframe, endFrame int, opts Options) (Expansion, error) {
	if err := opts.Validate(); err != nil {
		return Expansion{}, err
	}

	var exp Expansion
	for i := 1; i < len(keys); i++ {
		prev, cur := keys[i-1], keys[i]
		if prev.Class == cur.Class {
			continue
		}

		length := opts.Length
		if i+1 < len(keys) {
			length = min(length, keys[i+1].Frame-cur.Frame)
		}
		length = min(length, endFrame-cur.Frame)
		if length < 1 {
			continue
		}

		tr := Transition{
			Frame:    cur.Frame,
			From:     prev.Class,
			To:       cur.Class,
			Length:   length,
			Outgoing: make([]float64, length+1),
			Incoming: make([]float64, length+1),
		}
		for step := 0; step <= length; step++ {
			x := float64(step) / float64(length)
			tr.Outgoing[step] = opts.Curve.Apply(1 - x)
			tr.Incoming[step] = opts.Curve.Apply(x)
		}
		exp.Transitions = append(exp.Transitions, tr)
	}
	return exp, nil
}

// Weight returns the sampled weight of class at frame, if frame falls in a
// transition involving class.
func (e Expansion) Weight(class, frame int) (float64, bool) {
	w, ok := 0.0, false
	for _, tr := range e.Transitions {
		step := frame - tr.Frame
		if step < 0 || step > tr.Length {
			continue
		}
		switch class {
		case tr.From:
			w, ok = tr.Outgoing[step], true
		case tr.To:
			w, ok = tr.Incoming[step], true
		}
	}
	return w, ok
}

// Points returns every sampled weight for class in frame order, ready for
// an eased binding.
func (e Expansion) Points(class int) []binding.Point {
	var points []binding.Point
	for _, tr := range e.Transitions {
		var weights []float64
		switch class {
		case tr.From:
			weights = tr.Outgoing
		case tr.To:
			weights = tr.Incoming
		default:
			continue
		}
		for step, w := range weights {
			points = append(points, binding.Point{Frame: tr.Frame + step, Weight: w})
		}
	}
	return points
}
