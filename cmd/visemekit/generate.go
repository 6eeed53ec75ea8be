package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/bus"
	"github.com/normanking/visemekit/internal/config"
	"github.com/normanking/visemekit/internal/engine"
	"github.com/normanking/visemekit/internal/metrics"
	"github.com/normanking/visemekit/internal/scene"
	"github.com/normanking/visemekit/internal/session"
	"github.com/normanking/visemekit/internal/target"
	"github.com/normanking/visemekit/internal/timeline"
	"github.com/normanking/visemekit/internal/track"
)

// ============== Generate Command ==============

var (
	genTimeline  string
	genAudio     string
	genTargets   string
	genPreset    string
	genOut       string
	genBake      bool
	genRate      float64
	genStart     int
	genEasing    int
	genCurve     string
	genBlend     float64
	genAssign    []string
	genTrackName string
	genMerge     float64
	genMinHold   int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a controller track and target bindings",
	Long: `Reduce a phoneme timeline to viseme classes, write the controller
keyframes and bind every matched target to the controller. The result is
saved as a session document that preview and clean operate on.

The timeline comes from a timeline document (--timeline) or is extracted
from audio through the cache (--audio).`,
	Example: `  visemekit generate --audio line.wav --targets face.yaml
  visemekit generate --timeline line.json --targets face.yaml --easing 3 --curve ease_out
  visemekit generate --timeline line.json --targets face.yaml --assign 1=Face/mouth_AH --bake`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genTimeline, "timeline", "", "timeline document")
	f.StringVar(&genAudio, "audio", "", "audio file to analyze")
	f.StringVar(&genTargets, "targets", "", "target registry document (required)")
	f.StringVarP(&genPreset, "preset", "p", "", "viseme preset (default from config)")
	f.StringVarP(&genOut, "out", "o", "", "session document path (default <input>.session.json)")
	f.BoolVar(&genBake, "bake", false, "store evaluated per-frame target weights in the session")
	f.Float64Var(&genRate, "rate", 0, "frames per second")
	f.IntVar(&genStart, "start", 0, "frame that time zero maps to")
	f.IntVar(&genEasing, "easing", 0, "eased transition length in frames (0 disables)")
	f.StringVar(&genCurve, "curve", "", "easing curve: linear, ease_in, ease_out, ease_in_out")
	f.Float64Var(&genBlend, "blend", 0, "triangular falloff range in classes")
	f.StringArrayVar(&genAssign, "assign", nil, "pin a class to target refs: CLASS=REF[,REF...]")
	f.StringVar(&genTrackName, "track", "", "controller track name")
	f.Float64Var(&genMerge, "merge", 0, "drop events starting within this many seconds of the previous one")
	f.IntVar(&genMinHold, "min-hold", 0, "drop keyframes closer than this many frames")
	_ = generateCmd.MarkFlagRequired("targets")
	generateCmd.MarkFlagsMutuallyExclusive("timeline", "audio")
	generateCmd.MarkFlagsOneRequired("timeline", "audio")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := generateOptions(cmd, a.cfg.Animation)
	if err != nil {
		return err
	}

	presetName := a.cfg.Animation.Preset
	if genPreset != "" {
		presetName = genPreset
	}
	mapping, err := a.presets.Get(presetName)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tl, input, err := a.loadTimeline(ctx)
	if err != nil {
		return err
	}

	sc, err := scene.LoadTargets(genTargets)
	if err != nil {
		return err
	}
	targets := sc.Targets()

	eng := engine.New(target.DefaultAdapters(sc), track.NewRegistry())
	opts.AutoCreate = true

	start := time.Now()
	res, tr, err := eng.Generate(tl, mapping, nil, targets, opts)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Generations.WithLabelValues("error").Inc()
		a.log.Error("generate", "Generation failed", err, map[string]interface{}{"input": input, "preset": presetName})
		return err
	}
	metrics.Generations.WithLabelValues("ok").Inc()
	metrics.BindingsCreated.Add(float64(res.BindingCount))
	metrics.UnmappedSymbols.Add(float64(res.UnmappedWarnings))

	doc := session.New(tr, tl, presetName, targets, opts, res)
	if genBake {
		doc.Frames = sc.Bake(tr, res.FrameRange.Start, res.FrameRange.End)
	}

	out := genOut
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".session.json"
	}
	if err := session.Save(out, doc); err != nil {
		return err
	}

	a.events.Publish(bus.NewEvent(bus.EventTypeGenerated, map[string]any{
		"track":    res.TrackID,
		"session":  out,
		"bindings": res.BindingCount,
	}))
	a.log.Info("generate", "Generated controller track", map[string]interface{}{
		"track":     tr.Name(),
		"keyframes": res.KeyframeCount,
		"bindings":  res.BindingCount,
		"mode":      res.Mode,
	})

	printResult(cmd, tr, res, presetName)
	fmt.Fprintf(cmd.OutOrStdout(), "Session:    %s\n", out)
	a.reportProblems(cmd.OutOrStdout())
	return nil
}

func printResult(cmd *cobra.Command, tr *track.Track, res engine.Result, presetName string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Track:      %s (%s)\n", tr.Name(), res.TrackID)
	fmt.Fprintf(w, "Preset:     %s\n", presetName)
	fmt.Fprintf(w, "Mode:       %s\n", res.Mode)
	fmt.Fprintf(w, "Events:     %d\n", res.EventCount)
	fmt.Fprintf(w, "Keyframes:  %d\n", res.KeyframeCount)
	fmt.Fprintf(w, "Bindings:   %d\n", res.BindingCount)
	fmt.Fprintf(w, "Frames:     %d-%d\n", res.FrameRange.Start, res.FrameRange.End)
	if res.MergedEvents > 0 || res.DroppedKeyframes > 0 {
		fmt.Fprintf(w, "Filtered:   %d merged events, %d dropped keyframes\n", res.MergedEvents, res.DroppedKeyframes)
	}
	if res.UnmappedWarnings > 0 {
		symbols := make([]string, 0, len(res.UnmappedSymbols))
		for s, n := range res.UnmappedSymbols {
			symbols = append(symbols, fmt.Sprintf("%s x%d", s, n))
		}
		sort.Strings(symbols)
		fmt.Fprintf(w, "Unmapped:   %d (%s)\n", res.UnmappedWarnings, strings.Join(symbols, ", "))
	}
}

func (a *app) loadTimeline(ctx context.Context) (*timeline.Timeline, string, error) {
	if genTimeline != "" {
		tl, err := timeline.Load(genTimeline)
		return tl, genTimeline, err
	}
	out, err := a.analyze(ctx, genAudio)
	if err != nil {
		return nil, genAudio, err
	}
	return out.Timeline, genAudio, nil
}

// generateOptions starts from the configured animation defaults and applies
// the flags that were set.
func generateOptions(cmd *cobra.Command, defaults config.AnimationConfig) (engine.Options, error) {
	anim := defaults
	f := cmd.Flags()
	if f.Changed("rate") {
		anim.Rate = genRate
	}
	if f.Changed("start") {
		anim.StartFrame = genStart
	}
	if f.Changed("easing") {
		anim.Easing.Enabled = genEasing > 0
		anim.Easing.Length = genEasing
	}
	if f.Changed("curve") {
		anim.Easing.Curve = genCurve
	}
	if f.Changed("blend") {
		anim.BlendRange = genBlend
	}
	if f.Changed("track") {
		anim.TrackName = genTrackName
	}
	if f.Changed("merge") {
		anim.MergeThreshold = genMerge
	}
	if f.Changed("min-hold") {
		anim.MinHoldFrames = genMinHold
	}

	opts, err := anim.Options()
	if err != nil {
		return engine.Options{}, err
	}
	if len(genAssign) > 0 {
		assign, err := parseAssign(genAssign)
		if err != nil {
			return engine.Options{}, err
		}
		opts.Assign = assign
		if err := opts.Validate(); err != nil {
			return engine.Options{}, err
		}
	}
	return opts, nil
}

// parseAssign reads CLASS=REF[,REF...] pairs.
func parseAssign(values []string) (map[int][]string, error) {
	out := make(map[int][]string)
	for _, v := range values {
		cls, refs, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q: want CLASS=REF[,REF...]", v)
		}
		class, err := strconv.Atoi(strings.TrimSpace(cls))
		if err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", v, err)
		}
		for _, ref := range strings.Split(refs, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				out[class] = append(out[class], ref)
			}
		}
		if len(out[class]) == 0 {
			return nil, fmt.Errorf("invalid assignment %q: no target refs", v)
		}
	}
	return out, nil
}

// ============== Preview Command ==============

var previewAt []float64

var previewCmd = &cobra.Command{
	Use:   "preview <session>",
	Short: "Show the viseme class a session holds at given times",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Float64SliceVar(&previewAt, "at", nil, "times in seconds (default: every keyframe)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := session.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := doc.Restore()
	if err != nil {
		return err
	}
	eng := engine.New(target.NewAdapters(), nil)

	hint := func(int) string { return "" }
	if m, err := a.presets.Get(doc.Preset); err == nil {
		hint = m.TargetHint
	} else {
		a.log.Warn("preview", "Preset unavailable, hints omitted", map[string]interface{}{"preset": doc.Preset, "error": err.Error()})
	}

	times := previewAt
	if len(times) == 0 {
		for _, k := range tr.Keyframes() {
			times = append(times, float64(k.Frame-tr.StartFrame())/tr.Rate())
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-10s %-8s %-6s %s\n", "Time", "Frame", "Class", "Hint")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, at := range times {
		class, err := eng.PreviewAt(tr, at)
		if err != nil {
			return err
		}
		frame := track.Quantize(at, tr.Rate(), tr.StartFrame())
		fmt.Fprintf(w, "%-10.3f %-8d %-6d %s\n", at, frame, class, hint(class))
	}
	return nil
}

// ============== Clean Command ==============

var cleanCmd = &cobra.Command{
	Use:   "clean <session>",
	Short: "Remove the keyframes and bindings of a session",
	Long: `Rebuild the session's scene, remove every keyframe and every binding
the session created, and write the cleared session back. Running clean on
an already cleaned session reports nothing removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	doc, err := session.Load(path)
	if err != nil {
		return err
	}
	tr, err := doc.Restore()
	if err != nil {
		return err
	}

	sc, err := scene.New(doc.Targets...)
	if err != nil {
		return err
	}
	eng := engine.New(target.DefaultAdapters(sc), nil)

	// Bindings live on the scene, so a session that still owns keyframes is
	// regenerated before cleaning. When that fails the keyframes are still
	// removed and the document is still cleared.
	if tr.Len() > 0 {
		if err := regenerate(a, eng, doc, tr); err != nil {
			a.log.Warn("clean", "Session not regenerated, removing keyframes only", map[string]interface{}{
				"session": path,
				"preset":  doc.Preset,
				"error":   err.Error(),
			})
		}
	}

	res, err := eng.Clean(tr, doc.Targets)
	if err != nil {
		return err
	}

	doc.Track = session.StateOf(tr)
	doc.Bindings = nil
	doc.Frames = nil
	if err := session.Save(path, doc); err != nil {
		return err
	}

	a.events.Publish(bus.NewEvent(bus.EventTypeCleaned, map[string]any{
		"track":     tr.ID(),
		"keyframes": res.KeyframesRemoved,
		"bindings":  res.BindingsRemoved,
	}))

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Track:      %s (%s)\n", tr.Name(), tr.ID())
	fmt.Fprintf(w, "Keyframes:  %d removed\n", res.KeyframesRemoved)
	fmt.Fprintf(w, "Bindings:   %d removed\n", res.BindingsRemoved)
	a.reportProblems(w)
	return nil
}

func regenerate(a *app, eng *engine.Engine, doc *session.Document, tr *track.Track) error {
	if doc.Timeline == nil {
		return fmt.Errorf("session has no timeline")
	}
	mapping, err := a.presets.Get(doc.Preset)
	if err != nil {
		return err
	}
	opts, err := doc.Settings.Options()
	if err != nil {
		return err
	}
	_, _, err = eng.Generate(doc.Timeline, mapping, tr, doc.Targets, opts)
	return err
}
