package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/visemekit/internal/binding"
	"github.com/normanking/visemekit/internal/easing"
	"github.com/normanking/visemekit/internal/scene"
	"github.com/normanking/visemekit/internal/target"
	"github.com/normanking/visemekit/internal/timeline"
	"github.com/normanking/visemekit/internal/track"
	"github.com/normanking/visemekit/internal/viseme"
)

var (
	restTarget = target.Target{Ref: "Face/mouth_REST", Name: "mouth_REST", Kind: target.OpacityLayer, Object: "Face"}
	ahTarget   = target.Target{Ref: "Face/mouth_AH", Name: "mouth_AH", Kind: target.OpacityLayer, Object: "Face"}
	mbpTarget  = target.Target{Ref: "Face/mouth_MBP", Name: "mouth_MBP", Kind: target.OpacityLayer, Object: "Face"}
)

func testMapping(t *testing.T) *viseme.Mapping {
	t.Helper()
	m, err := viseme.NewMapping("test", "custom", []viseme.Entry{
		{Symbol: "SIL", Index: 0, Hint: "REST"},
		{Symbol: "A", Index: 1, Hint: "AH"},
		{Symbol: "B", Index: 2, Hint: "MBP"},
	})
	require.NoError(t, err)
	return m
}

func testTimeline(t *testing.T, events ...timeline.PhonemeEvent) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.New(events, timeline.Meta{SymbolSet: "custom"})
	require.NoError(t, err)
	return tl
}

func speech(t *testing.T) *timeline.Timeline {
	return testTimeline(t,
		timeline.PhonemeEvent{Symbol: "A", Start: 0, End: 0.5},
		timeline.PhonemeEvent{Symbol: "B", Start: 0.5, End: 1.2},
	)
}

type fixture struct {
	scene    *scene.Scene
	adapters *target.Adapters
	tracks   *track.Registry
	engine   *Engine
	targets  []target.Target
}

func newFixture(t *testing.T, targets ...target.Target) *fixture {
	t.Helper()
	if len(targets) == 0 {
		targets = []target.Target{restTarget, ahTarget, mbpTarget}
	}
	s, err := scene.New(targets...)
	require.NoError(t, err)
	adapters := target.DefaultAdapters(s)
	tracks := track.NewRegistry()
	return &fixture{
		scene:    s,
		adapters: adapters,
		tracks:   tracks,
		engine:   New(adapters, tracks),
		targets:  targets,
	}
}

func TestGenerate_KeyframesAtQuantizedStarts(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	res, got, err := f.engine.Generate(speech(t), testMapping(t), tr, f.targets, DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, tr, got)

	assert.Equal(t, []track.Keyframe{{Frame: 1, Class: 1}, {Frame: 13, Class: 2}}, tr.Keyframes())
	assert.Equal(t, "t1", res.TrackID)
	assert.Equal(t, 2, res.EventCount)
	assert.Equal(t, 2, res.KeyframeCount)
	assert.Equal(t, 3, res.BindingCount)
	assert.Equal(t, FrameRange{Start: 1, End: 30}, res.FrameRange)
	assert.Equal(t, "discrete", res.Mode)
	assert.Zero(t, res.UnmappedWarnings)

	assert.Equal(t, []string{
		"Face/mouth_AH#1 = eq(value, 1, 1, 0)",
		"Face/mouth_MBP#2 = eq(value, 2, 1, 0)",
		"Face/mouth_REST#0 = eq(value, 0, 1, 0)",
	}, tr.Bindings().Strings())
	assert.Equal(t, 3, f.scene.DriverCount(target.Owner))

	weights := f.scene.Evaluate(tr, 13)
	assert.Equal(t, 1.0, weights[mbpTarget.Ref])
	assert.Equal(t, 0.0, weights[ahTarget.Ref])

	props := tr.Properties()
	preset, _ := props.Get(PropPreset)
	assert.Equal(t, "test", preset)
	assert.ElementsMatch(t, f.targets, OwnedTargets(tr))
}

func TestGenerate_MissingClassMutatesNothing(t *testing.T) {
	f := newFixture(t, restTarget, ahTarget)
	tr := track.New("t1", "ctl", nil)
	_, err := tr.AddKeyframe(7, 1)
	require.NoError(t, err)

	_, _, err = f.engine.Generate(speech(t), testMapping(t), tr, f.targets, DefaultOptions())
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []int{2}, verr.MissingClasses)
	assert.Contains(t, err.Error(), "missing classes [2]")

	assert.Equal(t, []track.Keyframe{{Frame: 7, Class: 1}}, tr.Keyframes())
	assert.Zero(t, tr.Bindings().Len())
	assert.Zero(t, f.scene.DriverCount(target.Owner))
}

func TestGenerate_CleanThenGenerateIsIdentical(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	tl, m := speech(t), testMapping(t)

	_, _, err := f.engine.Generate(tl, m, tr, f.targets, DefaultOptions())
	require.NoError(t, err)
	first := tr.Bindings()
	firstKeys := tr.Keyframes()

	_, err = f.engine.Clean(tr, nil)
	require.NoError(t, err)

	_, _, err = f.engine.Generate(tl, m, tr, f.targets, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, first.Equal(tr.Bindings()))
	assert.Equal(t, first.Canonical(), tr.Bindings().Canonical())
	assert.Equal(t, firstKeys, tr.Keyframes())
}

func TestGenerate_ReplacesPreviousPass(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	m := testMapping(t)

	_, _, err := f.engine.Generate(speech(t), m, tr, f.targets, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.BlendRange = 0.5
	res, _, err := f.engine.Generate(speech(t), m, tr, f.targets, opts)
	require.NoError(t, err)

	assert.Equal(t, "falloff", res.Mode)
	assert.Equal(t, 3, f.scene.DriverCount(target.Owner))
	for _, s := range tr.Bindings().Strings() {
		assert.Contains(t, s, "abs(sub(value,")
	}
}

func TestGenerate_Eased(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	opts := DefaultOptions()
	opts.Easing = &easing.Options{Length: 4, Curve: easing.Linear}
	res, _, err := f.engine.Generate(speech(t), testMapping(t), tr, f.targets, opts)
	require.NoError(t, err)

	assert.Equal(t, "eased", res.Mode)
	assert.Equal(t, 1, res.Transitions)

	b, ok := tr.Bindings().Get(binding.Key{TargetRef: mbpTarget.Ref, Class: 2})
	require.True(t, ok)
	assert.Contains(t, b.Expr.String(), "samples(")

	weights := f.scene.Evaluate(tr, 13)
	assert.Less(t, weights[mbpTarget.Ref], 1.0)
	assert.Greater(t, weights[ahTarget.Ref], 0.0)

	weights = f.scene.Evaluate(tr, 20)
	assert.Equal(t, 1.0, weights[mbpTarget.Ref])
	assert.Equal(t, 0.0, weights[ahTarget.Ref])
}

func TestGenerate_InvalidOptions(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero rate", func(o *Options) { o.Rate = 0 }},
		{"negative blend", func(o *Options) { o.BlendRange = -1 }},
		{"easing too long", func(o *Options) { o.Easing = &easing.Options{Length: 31} }},
		{"easing with blend", func(o *Options) {
			o.Easing = &easing.Options{Length: 3}
			o.BlendRange = 0.5
		}},
		{"negative hold", func(o *Options) { o.MinHoldFrames = -1 }},
		{"negative assign", func(o *Options) { o.Assign = map[int][]string{-1: {"x"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			_, _, err := f.engine.Generate(speech(t), testMapping(t), tr, f.targets, opts)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, tr.Len())
		})
	}
}

func TestGenerate_NoValidTargets(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	unknown := target.Target{Ref: "Other/mouth_AH", Name: "mouth_AH", Kind: target.OpacityLayer, Object: "Other"}

	_, _, err := f.engine.Generate(speech(t), testMapping(t), tr, []target.Target{unknown}, DefaultOptions())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "none of 1 targets")
}

func TestGenerate_UnmappedSymbols(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	tl := testTimeline(t,
		timeline.PhonemeEvent{Symbol: "A", Start: 0, End: 0.5},
		timeline.PhonemeEvent{Symbol: "ZZ", Start: 0.5, End: 0.7},
		timeline.PhonemeEvent{Symbol: "ZZ", Start: 0.7, End: 0.8},
		timeline.PhonemeEvent{Symbol: "B", Start: 0.8, End: 1.2},
	)

	res, _, err := f.engine.Generate(tl, testMapping(t), tr, f.targets, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, res.UnmappedWarnings)
	assert.Equal(t, map[string]int{"ZZ": 2}, res.UnmappedSymbols)
	assert.Equal(t, []track.Keyframe{{Frame: 1, Class: 1}, {Frame: 13, Class: 0}, {Frame: 20, Class: 2}}, tr.Keyframes())
}

func TestGenerate_SameFrameLaterEventWins(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	tl := testTimeline(t,
		timeline.PhonemeEvent{Symbol: "A", Start: 0, End: 0.01},
		timeline.PhonemeEvent{Symbol: "B", Start: 0.01, End: 0.5},
	)

	_, _, err := f.engine.Generate(tl, testMapping(t), tr, f.targets, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []track.Keyframe{{Frame: 1, Class: 2}}, tr.Keyframes())
}

func TestGenerate_MergeAndHold(t *testing.T) {
	f := newFixture(t)
	tl := testTimeline(t,
		timeline.PhonemeEvent{Symbol: "A", Start: 0, End: 0.5},
		timeline.PhonemeEvent{Symbol: "B", Start: 0.5, End: 0.52},
		timeline.PhonemeEvent{Symbol: "SIL", Start: 0.52, End: 1},
	)

	t.Run("merge threshold", func(t *testing.T) {
		tr := track.New("t1", "ctl", nil)
		opts := DefaultOptions()
		opts.MergeThreshold = 0.05
		res, _, err := f.engine.Generate(tl, testMapping(t), tr, f.targets, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, res.MergedEvents)
		assert.Equal(t, []track.Keyframe{{Frame: 1, Class: 1}, {Frame: 13, Class: 2}}, tr.Keyframes())
	})

	t.Run("min hold frames", func(t *testing.T) {
		tr := track.New("t2", "ctl", nil)
		opts := DefaultOptions()
		opts.MinHoldFrames = 3
		res, _, err := f.engine.Generate(tl, testMapping(t), tr, f.targets, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, res.DroppedKeyframes)
		assert.Equal(t, []track.Keyframe{{Frame: 1, Class: 1}, {Frame: 13, Class: 2}}, tr.Keyframes())
	})
}

func TestGenerate_Assign(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	opts := DefaultOptions()
	opts.Assign = map[int][]string{2: {"mouth_REST"}}
	res, _, err := f.engine.Generate(speech(t), testMapping(t), tr, f.targets, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, res.BindingCount)
	assert.Equal(t, []string{
		"Face/mouth_AH#1 = eq(value, 1, 1, 0)",
		"Face/mouth_REST#2 = eq(value, 2, 1, 0)",
	}, tr.Bindings().Strings())

	opts.Assign = map[int][]string{2: {"Face/nothing"}}
	_, _, err = f.engine.Generate(speech(t), testMapping(t), tr, f.targets, opts)
	assert.ErrorIs(t, err, ErrValidation)

	opts.Assign = map[int][]string{9: {"mouth_REST"}}
	_, _, err = f.engine.Generate(speech(t), testMapping(t), tr, f.targets, opts)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 2, tr.Bindings().Len(), "failed calls keep the previous pass")
}

func TestGenerate_StateAndAutoCreate(t *testing.T) {
	f := newFixture(t)

	_, tr, err := f.engine.Generate(speech(t), testMapping(t), nil, f.targets, DefaultOptions())
	assert.ErrorIs(t, err, ErrState)
	assert.Nil(t, tr)

	opts := DefaultOptions()
	opts.AutoCreate = true

	_, tr, err = f.engine.Generate(speech(t), testMapping(t), nil, []target.Target{restTarget}, opts)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, tr)
	assert.Empty(t, f.tracks.List())

	res, tr, err := f.engine.Generate(speech(t), testMapping(t), nil, f.targets, opts)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, track.DefaultName, tr.Name())
	assert.Equal(t, tr.ID(), res.TrackID)
	assert.Len(t, f.tracks.List(), 1)
}

// flakyAdapter rejects the first bind on one ref.
type flakyAdapter struct {
	*target.HostAdapter
	failRef  string
	failures int
}

func (a *flakyAdapter) Bind(t target.Target, b binding.Binding) (target.Handle, error) {
	if t.Ref == a.failRef && a.failures > 0 {
		a.failures--
		return target.Handle{}, errors.New("property is locked")
	}
	return a.HostAdapter.Bind(t, b)
}

func TestGenerate_RollbackOnBindingError(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)
	m := testMapping(t)

	_, _, err := f.engine.Generate(speech(t), m, tr, f.targets, DefaultOptions())
	require.NoError(t, err)
	before := tr.Snapshot()
	drivers := f.scene.Drivers(mbpTarget.Ref)

	f.adapters.Register(&flakyAdapter{
		HostAdapter: target.NewHostAdapter(target.OpacityLayer, f.scene, nil),
		failRef:     mbpTarget.Ref,
		failures:    1,
	})

	opts := DefaultOptions()
	opts.BlendRange = 0.25
	late := testTimeline(t,
		timeline.PhonemeEvent{Symbol: "B", Start: 0, End: 0.3},
		timeline.PhonemeEvent{Symbol: "A", Start: 0.3, End: 1},
	)
	_, _, err = f.engine.Generate(late, m, tr, f.targets, opts)
	require.Error(t, err)

	var berr *BindingError
	require.ErrorAs(t, err, &berr)
	assert.ErrorIs(t, err, ErrBinding)
	assert.Equal(t, mbpTarget.Ref, berr.TargetRef)

	assert.Equal(t, before.Keyframes, tr.Keyframes())
	assert.True(t, before.Bindings.Equal(tr.Bindings()))
	assert.Equal(t, 3, f.scene.DriverCount(target.Owner))
	require.Len(t, f.scene.Drivers(mbpTarget.Ref), len(drivers))
	assert.Equal(t, drivers[0].Expr.String(), f.scene.Drivers(mbpTarget.Ref)[0].Expr.String())
}

func TestGenerate_RollbackKeepsOtherTrackBindings(t *testing.T) {
	f := newFixture(t)
	m := testMapping(t)

	first := track.New("t1", "first", nil)
	_, _, err := f.engine.Generate(speech(t), m, first, f.targets, DefaultOptions())
	require.NoError(t, err)

	before := make(map[string][]target.Driver)
	for _, tg := range f.targets {
		before[tg.Ref] = f.scene.Drivers(tg.Ref)
	}
	count := f.scene.DriverCount(target.Owner)
	require.Equal(t, 3, count)

	f.adapters.Register(&flakyAdapter{
		HostAdapter: target.NewHostAdapter(target.OpacityLayer, f.scene, nil),
		failRef:     mbpTarget.Ref,
		failures:    1,
	})

	second := track.New("t2", "second", nil)
	_, _, err = f.engine.Generate(speech(t), m, second, f.targets, DefaultOptions())
	require.ErrorIs(t, err, ErrBinding)

	assert.Zero(t, second.Len())
	assert.Equal(t, count, f.scene.DriverCount(target.Owner))
	for _, tg := range f.targets {
		got := f.scene.Drivers(tg.Ref)
		require.Len(t, got, len(before[tg.Ref]), tg.Ref)
		for i := range got {
			assert.Equal(t, before[tg.Ref][i].Class, got[i].Class, tg.Ref)
			assert.Equal(t, before[tg.Ref][i].Expr.String(), got[i].Expr.String(), tg.Ref)
		}
	}
}

func TestClean(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	_, err := f.scene.AddDriver(ahTarget.Ref, target.Driver{Owner: "user", Class: 1, Expr: binding.Const(0.2)})
	require.NoError(t, err)

	_, _, err = f.engine.Generate(speech(t), testMapping(t), tr, f.targets, DefaultOptions())
	require.NoError(t, err)

	res, err := f.engine.Clean(tr, nil)
	require.NoError(t, err)
	assert.Equal(t, CleanResult{KeyframesRemoved: 2, BindingsRemoved: 3}, res)

	assert.Zero(t, tr.Len())
	assert.Zero(t, tr.Bindings().Len())
	assert.Zero(t, f.scene.DriverCount(target.Owner))
	assert.Len(t, f.scene.Drivers(ahTarget.Ref), 1, "foreign drivers survive")
	assert.Empty(t, OwnedTargets(tr))

	res, err = f.engine.Clean(tr, f.targets)
	require.NoError(t, err)
	assert.Equal(t, CleanResult{}, res)

	_, err = f.engine.Clean(nil, nil)
	assert.ErrorIs(t, err, ErrState)
}

func TestPreviewAt(t *testing.T) {
	f := newFixture(t)
	tr := track.New("t1", "ctl", nil)

	got, err := f.engine.PreviewAt(tr, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got, "empty track")

	_, _, err = f.engine.Generate(speech(t), testMapping(t), tr, f.targets, DefaultOptions())
	require.NoError(t, err)

	tests := []struct {
		at   float64
		want int
	}{
		{0, 1},
		{0.4, 1},
		{0.5, 2},
		{5, 2},
	}
	for _, tt := range tests {
		got, err := f.engine.PreviewAt(tr, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "at %v", tt.at)
	}

	_, err = f.engine.PreviewAt(nil, 0)
	assert.ErrorIs(t, err, ErrState)
}
