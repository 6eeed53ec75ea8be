// Package engine orchestrates lip-sync generation: viseme reduction, frame
// quantization, controller keyframes, optional easing and binding
// generation through target adapters.
//
// Generate and Clean are synchronous and assume one writer per track.
// Every failure is returned as a typed error and leaves the track and its
// bindings exactly as they were. The engine does not log.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/normanking/visemekit/internal/binding"
	"github.com/normanking/visemekit/internal/easing"
	"github.com/normanking/visemekit/internal/target"
	"github.com/normanking/visemekit/internal/timeline"
	"github.com/normanking/visemekit/internal/track"
	"github.com/normanking/visemekit/internal/viseme"
)

// Track property keys written by the engine.
const (
	PropTargets = "visemekit.targets"
	PropPreset  = "visemekit.preset"
	PropMode    = "visemekit.mode"
)

// FrameRange is an inclusive frame interval.
type FrameRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result summarizes a successful generation.
type Result struct {
	TrackID          string         `json:"track_id"`
	EventCount       int            `json:"event_count"`
	KeyframeCount    int            `json:"keyframe_count"`
	BindingCount     int            `json:"binding_count"`
	FrameRange       FrameRange     `json:"frame_range"`
	UnmappedWarnings int            `json:"unmapped_warnings"`
	UnmappedSymbols  map[string]int `json:"unmapped_symbols,omitempty"`
	MergedEvents     int            `json:"merged_events"`
	DroppedKeyframes int            `json:"dropped_keyframes"`
	Transitions      int            `json:"transitions"`
	Mode             string         `json:"mode"`
}

// CleanResult summarizes a Clean call.
type CleanResult struct {
	KeyframesRemoved int `json:"keyframes_removed"`
	BindingsRemoved  int `json:"bindings_removed"`
}

// Engine generates and cleans controller tracks.
type Engine struct {
	adapters *target.Adapters
	tracks   *track.Registry
}

// New creates an engine. tracks may be nil when auto-creation is never used.
func New(adapters *target.Adapters, tracks *track.Registry) *Engine {
	return &Engine{adapters: adapters, tracks: tracks}
}

// plan is everything Generate computes before it mutates anything.
type plan struct {
	keyframes  []track.Keyframe
	bindings   *binding.Set
	targets    map[string]target.Target
	bound      []target.Target
	scope      []target.Target
	frameRange FrameRange
	result     Result
}

// Generate rebuilds tr from tl and replaces its bindings on targets.
// When tr is nil a track is created if opts.AutoCreate is set; the track
// used is returned.
func (e *Engine) Generate(tl *timeline.Timeline, m *viseme.Mapping, tr *track.Track, targets []target.Target, opts Options) (Result, *track.Track, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, tr, err
	}
	if tl == nil {
		return Result{}, tr, &ValidationError{Reason: "no timeline"}
	}
	if m == nil {
		return Result{}, tr, &ValidationError{Reason: "no mapping"}
	}
	if tr == nil && (!opts.AutoCreate || e.tracks == nil) {
		return Result{}, nil, &StateError{Reason: "no controller track and auto-creation is disabled"}
	}

	p, err := e.plan(tl, m, targets, opts)
	if err != nil {
		return Result{}, tr, err
	}

	created := false
	if tr == nil {
		tr = e.tracks.Create(opts.TrackName)
		created = true
	}

	if err := e.apply(tr, m, p, opts); err != nil {
		if created {
			_ = e.tracks.Destroy(tr.ID())
			return Result{}, nil, err
		}
		return Result{}, tr, err
	}

	res := p.result
	res.TrackID = tr.ID()
	return res, tr, nil
}

func (e *Engine) plan(tl *timeline.Timeline, m *viseme.Mapping, targets []target.Target, opts Options) (*plan, error) {
	events := tl.Events()
	symbols := make([]string, len(events))
	for i, ev := range events {
		symbols[i] = ev.Symbol
	}
	reduction := m.Reduce(symbols)

	p := &plan{
		result: Result{
			EventCount:       len(events),
			UnmappedWarnings: reduction.Unmapped,
			UnmappedSymbols:  reduction.UnmappedSymbols,
			Mode:             opts.Mode(),
		},
	}

	keyframes, merged, dropped, err := buildKeyframes(events, reduction.Classes, opts)
	if err != nil {
		return nil, &ValidationError{Reason: "cannot build keyframes", Err: err}
	}
	p.keyframes = keyframes
	p.result.KeyframeCount = len(keyframes)
	p.result.MergedEvents = merged
	p.result.DroppedKeyframes = dropped

	endFrame := track.Quantize(tl.Duration(), opts.Rate, opts.StartFrame)
	startFrame := opts.StartFrame
	if n := len(keyframes); n > 0 {
		startFrame = keyframes[0].Frame
		endFrame = max(endFrame, keyframes[n-1].Frame)
	}
	p.frameRange = FrameRange{Start: startFrame, End: endFrame}
	p.result.FrameRange = p.frameRange

	valid := make([]target.Target, 0, len(targets))
	for _, t := range targets {
		if e.adapters.Validate(t) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("none of %d targets passed validation", len(targets))}
	}
	p.scope = valid

	resolved, err := resolveTargets(m, valid, opts.Assign)
	if err != nil {
		return nil, err
	}

	var missing []int
	for _, class := range reduction.Used() {
		if len(resolved[class]) == 0 {
			missing = append(missing, class)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Reason: "mapping does not cover every class the timeline uses", MissingClasses: missing}
	}

	var exp easing.Expansion
	if opts.Easing != nil {
		exp, err = easing.Expand(keyframes, endFrame, *opts.Easing)
		if err != nil {
			return nil, &ValidationError{Reason: "invalid easing", Err: err}
		}
		p.result.Transitions = len(exp.Transitions)
	}

	p.bindings = &binding.Set{}
	p.targets = make(map[string]target.Target)
	classes := make([]int, 0, len(resolved))
	for class := range resolved {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	for _, class := range classes {
		expr := bindingExpr(class, opts, exp)
		for _, t := range resolved[class] {
			if err := p.bindings.Add(binding.Binding{TargetRef: t.Ref, Class: class, Expr: expr}); err != nil {
				return nil, &ValidationError{Reason: "conflicting assignment", Err: err}
			}
			if _, ok := p.targets[t.Ref]; !ok {
				p.targets[t.Ref] = t
				p.bound = append(p.bound, t)
			}
		}
	}
	p.result.BindingCount = p.bindings.Len()

	return p, nil
}

func bindingExpr(class int, opts Options, exp easing.Expansion) binding.Expr {
	switch {
	case opts.Easing != nil:
		return binding.Eased(class, exp.Points(class))
	case opts.BlendRange > 0:
		return binding.Falloff(class, opts.BlendRange)
	default:
		return binding.Discrete(class)
	}
}

// buildKeyframes applies the merge threshold, quantizes event starts,
// lets the later event win on a shared frame, applies the minimum hold and
// collapses repeated classes.
func buildKeyframes(events []timeline.PhonemeEvent, classes []int, opts Options) ([]track.Keyframe, int, int, error) {
	type candidate struct {
		start float64
		class int
	}

	kept := make([]candidate, 0, len(events))
	merged := 0
	for i, ev := range events {
		if opts.MergeThreshold > 0 && len(kept) > 0 && ev.Start-kept[len(kept)-1].start < opts.MergeThreshold {
			merged++
			continue
		}
		kept = append(kept, candidate{start: ev.Start, class: classes[i]})
	}

	frames := make([]track.Keyframe, 0, len(kept))
	for _, c := range kept {
		f := track.Quantize(c.start, opts.Rate, opts.StartFrame)
		if n := len(frames); n > 0 && frames[n-1].Frame == f {
			frames[n-1].Class = c.class
			continue
		}
		frames = append(frames, track.Keyframe{Frame: f, Class: c.class})
	}

	dropped := 0
	if opts.MinHoldFrames > 0 {
		held := frames[:0:0]
		for _, k := range frames {
			if len(held) > 0 && k.Frame-held[len(held)-1].Frame < opts.MinHoldFrames {
				dropped++
				continue
			}
			held = append(held, k)
		}
		frames = held
	}

	scratch := track.New("", "", nil)
	for _, k := range frames {
		if _, err := scratch.AddKeyframe(k.Frame, k.Class); err != nil {
			return nil, 0, 0, err
		}
	}
	return scratch.Keyframes(), merged, dropped, nil
}

// resolveTargets maps classes to targets: explicit assignments first, then
// hint matching over the remaining targets.
func resolveTargets(m *viseme.Mapping, valid []target.Target, assign map[int][]string) (map[int][]target.Target, error) {
	resolved := make(map[int][]target.Target)
	taken := make(map[string]bool)

	assigned := make([]int, 0, len(assign))
	for class := range assign {
		assigned = append(assigned, class)
	}
	sort.Ints(assigned)

	for _, class := range assigned {
		if !m.HasClass(class) {
			return nil, &ValidationError{Reason: fmt.Sprintf("assignment to class %d outside mapping", class)}
		}
		for _, ref := range assign[class] {
			found := false
			for _, t := range valid {
				if t.Ref == ref || t.Name == ref {
					resolved[class] = append(resolved[class], t)
					taken[t.Ref] = true
					found = true
				}
			}
			if !found {
				return nil, &ValidationError{Reason: fmt.Sprintf("assigned target %q is not a valid target", ref)}
			}
		}
	}

	for _, t := range valid {
		if taken[t.Ref] {
			continue
		}
		for class := range m.MatchTargets([]string{t.Name}) {
			if _, pinned := assign[class]; pinned {
				continue
			}
			resolved[class] = append(resolved[class], t)
		}
	}
	return resolved, nil
}

func (e *Engine) apply(tr *track.Track, m *viseme.Mapping, p *plan, opts Options) error {
	snap := tr.Snapshot()
	scope := mergeScope(ownedTargets(snap.Properties[PropTargets]), p.scope)
	prior := e.attached(scope)

	e.clearTargets(scope)
	tr.Clear()
	if err := tr.Configure(opts.Rate, opts.StartFrame); err != nil {
		e.rollback(tr, snap, scope, prior)
		return &ValidationError{Reason: "invalid frame rate", Err: err}
	}
	for _, k := range p.keyframes {
		if _, err := tr.AddKeyframe(k.Frame, k.Class); err != nil {
			e.rollback(tr, snap, scope, prior)
			return &ValidationError{Reason: "cannot write keyframes", Err: err}
		}
	}

	for _, b := range p.bindings.Bindings() {
		t := p.targets[b.TargetRef]
		adapter, ok := e.adapters.For(t.Kind)
		if !ok {
			e.rollback(tr, snap, scope, prior)
			return &BindingError{TargetRef: t.Ref, Class: b.Class, Err: fmt.Errorf("no adapter for kind %s", t.Kind)}
		}
		if _, err := adapter.Bind(t, b); err != nil {
			e.rollback(tr, snap, scope, prior)
			return &BindingError{TargetRef: t.Ref, Class: b.Class, Err: err}
		}
	}

	tr.SetBindings(p.bindings)
	props := tr.Properties()
	props.Set(PropTargets, encodeTargets(p.bound))
	props.Set(PropPreset, m.Name())
	props.Set(PropMode, opts.Mode())
	return nil
}

// attachedBinding is an engine-owned driver found on a target before a pass.
type attachedBinding struct {
	target  target.Target
	binding binding.Binding
}

// attached records every engine-owned driver on targets, whichever track
// created it.
func (e *Engine) attached(targets []target.Target) []attachedBinding {
	var out []attachedBinding
	for _, t := range targets {
		adapter, ok := e.adapters.For(t.Kind)
		if !ok {
			continue
		}
		for _, b := range adapter.Bindings(t) {
			out = append(out, attachedBinding{target: t, binding: b})
		}
	}
	return out
}

// rollback clears whatever the failed pass attached, restores the previous
// keyframes and bindings and re-attaches exactly the drivers the pass
// removed.
func (e *Engine) rollback(tr *track.Track, snap track.State, scope []target.Target, prior []attachedBinding) {
	e.clearTargets(scope)
	tr.Restore(snap)

	for _, a := range prior {
		if adapter, ok := e.adapters.For(a.target.Kind); ok {
			_, _ = adapter.Bind(a.target, a.binding)
		}
	}
}

func (e *Engine) clearTargets(targets []target.Target) int {
	removed := 0
	for _, t := range targets {
		if adapter, ok := e.adapters.For(t.Kind); ok {
			removed += adapter.ClearBindings(t)
		}
	}
	return removed
}

// Clean removes the track's keyframes and every engine-owned binding on
// the targets it bound plus any extra targets passed in. It is idempotent.
func (e *Engine) Clean(tr *track.Track, targets []target.Target) (CleanResult, error) {
	if tr == nil {
		return CleanResult{}, &StateError{Reason: "no controller track"}
	}

	props := tr.Properties()
	raw, _ := props.Get(PropTargets)
	owned := ownedTargets(raw)
	var extra []target.Target
	for _, t := range targets {
		if e.adapters.Validate(t) {
			extra = append(extra, t)
		}
	}

	res := CleanResult{KeyframesRemoved: tr.Len()}
	res.BindingsRemoved = e.clearTargets(mergeScope(owned, extra))

	tr.Clear()
	tr.SetBindings(nil)
	props.Delete(PropTargets)
	props.Delete(PropPreset)
	props.Delete(PropMode)
	return res, nil
}

// PreviewAt returns the class the track holds at time at, using the rate
// and start frame of its last generation. It never mutates.
func (e *Engine) PreviewAt(tr *track.Track, at float64) (int, error) {
	if tr == nil {
		return 0, &StateError{Reason: "no controller track"}
	}
	return tr.ValueAtTime(at), nil
}

// OwnedTargets returns the targets the track's last generation bound.
func OwnedTargets(tr *track.Track) []target.Target {
	raw, _ := tr.Properties().Get(PropTargets)
	return ownedTargets(raw)
}

func ownedTargets(raw string) []target.Target {
	if raw == "" {
		return nil
	}
	var targets []target.Target
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil
	}
	return targets
}

func encodeTargets(targets []target.Target) string {
	data, err := json.Marshal(targets)
	if err != nil {
		return ""
	}
	return string(data)
}

// mergeScope unions two target lists by ref; later lists win.
func mergeScope(lists ...[]target.Target) []target.Target {
	byRef := make(map[string]int)
	var out []target.Target
	for _, list := range lists {
		for _, t := range list {
			if i, ok := byRef[t.Ref]; ok {
				out[i] = t
				continue
			}
			byRef[t.Ref] = len(out)
			out = append(out, t)
		}
	}
	return out
}
