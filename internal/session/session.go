// Package session persists one generation so later CLI invocations can
// preview or clean it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/normanking/visemekit/internal/easing"
	"github.com/normanking/visemekit/internal/engine"
	"github.com/normanking/visemekit/internal/scene"
	"github.com/normanking/visemekit/internal/target"
	"github.com/normanking/visemekit/internal/timeline"
	"github.com/normanking/visemekit/internal/track"
)

// Version is bumped when the document layout changes.
const Version = 1

var (
	ErrVersion = errors.New("unsupported session version")
	ErrNoTrack = errors.New("session has no track")
)

// Settings are the generation options in document form.
type Settings struct {
	StartFrame     int              `json:"start_frame"`
	Rate           float64          `json:"rate"`
	EasingLength   int              `json:"easing_length,omitempty"`
	EasingCurve    string           `json:"easing_curve,omitempty"`
	BlendRange     float64          `json:"blend_range,omitempty"`
	TrackName      string           `json:"track_name,omitempty"`
	Assign         map[int][]string `json:"assign,omitempty"`
	MergeThreshold float64          `json:"merge_threshold,omitempty"`
	MinHoldFrames  int              `json:"min_hold_frames,omitempty"`
}

// SettingsFrom converts engine options.
func SettingsFrom(opts engine.Options) Settings {
	s := Settings{
		StartFrame:     opts.StartFrame,
		Rate:           opts.Rate,
		BlendRange:     opts.BlendRange,
		TrackName:      opts.TrackName,
		Assign:         opts.Assign,
		MergeThreshold: opts.MergeThreshold,
		MinHoldFrames:  opts.MinHoldFrames,
	}
	if opts.Easing != nil {
		s.EasingLength = opts.Easing.Length
		s.EasingCurve = opts.Easing.Curve.String()
	}
	return s
}

// Options converts back to validated engine options.
func (s Settings) Options() (engine.Options, error) {
	opts := engine.Options{
		StartFrame:     s.StartFrame,
		Rate:           s.Rate,
		BlendRange:     s.BlendRange,
		TrackName:      s.TrackName,
		Assign:         s.Assign,
		MergeThreshold: s.MergeThreshold,
		MinHoldFrames:  s.MinHoldFrames,
	}
	if s.EasingCurve != "" {
		curve, err := easing.ParseCurve(s.EasingCurve)
		if err != nil {
			return engine.Options{}, err
		}
		opts.Easing = &easing.Options{Length: s.EasingLength, Curve: curve}
	}
	if err := opts.Validate(); err != nil {
		return engine.Options{}, err
	}
	return opts, nil
}

// TrackState is the serialized controller track.
type TrackState struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Rate       float64           `json:"rate"`
	StartFrame int               `json:"start_frame"`
	Keyframes  []track.Keyframe  `json:"keyframes"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Document is a saved generation.
type Document struct {
	Version   int                  `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	Preset    string               `json:"preset"`
	Settings  Settings             `json:"settings"`
	Track     *TrackState          `json:"track,omitempty"`
	Result    engine.Result        `json:"result"`
	Bindings  []string             `json:"bindings,omitempty"`
	Targets   []target.Target      `json:"targets"`
	Timeline  *timeline.Timeline   `json:"timeline"`
	Frames    []scene.FrameWeights `json:"frames,omitempty"`
}

// New captures a generated track.
func New(tr *track.Track, tl *timeline.Timeline, preset string, targets []target.Target, opts engine.Options, res engine.Result) *Document {
	return &Document{
		Version:   Version,
		CreatedAt: time.Now().UTC(),
		Preset:    preset,
		Settings:  SettingsFrom(opts),
		Track:     StateOf(tr),
		Result:    res,
		Bindings:  tr.Bindings().Strings(),
		Targets:   targets,
		Timeline:  tl,
	}
}

// StateOf serializes a track.
func StateOf(tr *track.Track) *TrackState {
	props := tr.Properties()
	values := make(map[string]string)
	for _, k := range props.Keys() {
		if v, ok := props.Get(k); ok {
			values[k] = v
		}
	}
	return &TrackState{
		ID:         tr.ID(),
		Name:       tr.Name(),
		Rate:       tr.Rate(),
		StartFrame: tr.StartFrame(),
		Keyframes:  tr.Keyframes(),
		Properties: values,
	}
}

// Restore rebuilds the controller track. Bindings are not restored; they
// live on the scene targets.
func (d *Document) Restore() (*track.Track, error) {
	if d.Track == nil {
		return nil, ErrNoTrack
	}
	s := d.Track
	tr := track.New(s.ID, s.Name, nil)
	if err := tr.Configure(s.Rate, s.StartFrame); err != nil {
		return nil, fmt.Errorf("restore track %s: %w", s.Name, err)
	}
	for _, k := range s.Keyframes {
		if _, err := tr.AddKeyframe(k.Frame, k.Class); err != nil {
			return nil, fmt.Errorf("restore track %s: %w", s.Name, err)
		}
	}
	props := tr.Properties()
	for k, v := range s.Properties {
		props.Set(k, v)
	}
	return tr, nil
}

// Load reads a session document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	return &doc, nil
}

// Save writes doc to path atomically.
func Save(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
