package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/normanking/visemekit/internal/timeline"
)

// RhubarbID is the extractor id of the Rhubarb adapter.
const RhubarbID = "rhubarb"

// lastCueLength is the length given to the final cue when the tool
// reports no end for it.
const lastCueLength = 0.1

// RhubarbConfig holds Rhubarb Lip Sync settings.
type RhubarbConfig struct {
	Binary         string        `mapstructure:"binary" json:"binary"`
	Recognizer     string        `mapstructure:"recognizer" json:"recognizer"`
	ExtendedShapes string        `mapstructure:"extended_shapes" json:"extended_shapes"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
}

// DefaultRhubarbConfig returns the settings the tool documents as most
// accurate for English dialog.
func DefaultRhubarbConfig() RhubarbConfig {
	return RhubarbConfig{
		Binary:         "rhubarb",
		Recognizer:     "pocketSphinx",
		ExtendedShapes: "GHX",
		Timeout:        5 * time.Minute,
	}
}

// Rhubarb runs the Rhubarb Lip Sync binary and decodes its JSON output.
type Rhubarb struct {
	cfg RhubarbConfig
}

// NewRhubarb creates the adapter. Zero fields take their defaults.
func NewRhubarb(cfg RhubarbConfig) *Rhubarb {
	def := DefaultRhubarbConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Recognizer == "" {
		cfg.Recognizer = def.Recognizer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Rhubarb{cfg: cfg}
}

func (r *Rhubarb) ID() string { return RhubarbID }

func (r *Rhubarb) Config() map[string]string {
	return map[string]string{
		"recognizer":      r.cfg.Recognizer,
		"extended_shapes": r.cfg.ExtendedShapes,
	}
}

// Health checks that the binary resolves and answers --version.
func (r *Rhubarb) Health(ctx context.Context) error {
	bin, err := r.binary()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s --version: %v\n%s", ErrToolNotFound, bin, err, out)
	}
	return nil
}

func (r *Rhubarb) binary() (string, error) {
	if r.cfg.Binary == "" {
		return "", fmt.Errorf("%w: no binary configured", ErrToolNotFound)
	}
	bin, err := exec.LookPath(r.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, r.cfg.Binary)
	}
	return bin, nil
}

// Extract runs the tool on audioPath.
func (r *Rhubarb) Extract(ctx context.Context, audioPath string) (*timeline.Timeline, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, audioPath)
	}
	bin, err := r.binary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := []string{"-f", "json", "-r", r.cfg.Recognizer}
	if r.cfg.ExtendedShapes != "" {
		args = append(args, "--extendedShapes", r.cfg.ExtendedShapes)
	}
	args = append(args, audioPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: rhubarb: %w", ErrExtraction, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%w: rhubarb failed: %v\n%s", ErrExtraction, err, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 || out[0] != '{' {
		return nil, fmt.Errorf("%w: rhubarb did not return JSON: %q", ErrExtraction, truncate(out, 200))
	}

	tl, err := ParseRhubarb(out, map[string]string{"tool_path": bin})
	if err != nil {
		return nil, err
	}
	return tl, nil
}

type rhubarbCue struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
	Value string   `json:"value"`
}

type rhubarbOutput struct {
	Metadata struct {
		SoundFile string  `json:"soundFile"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	MouthCues []rhubarbCue `json:"mouthCues"`
}

// ParseRhubarb decodes Rhubarb JSON output. Each cue becomes one event
// using the mouth shape letter as its symbol. A cue without an end runs to
// the next cue's start.
func ParseRhubarb(data []byte, metadata map[string]string) (*timeline.Timeline, error) {
	var doc rhubarbOutput
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode rhubarb output: %v", ErrExtraction, err)
	}
	if doc.MouthCues == nil {
		return nil, fmt.Errorf("%w: rhubarb output has no mouthCues", ErrExtraction)
	}
	if len(doc.MouthCues) == 0 {
		return nil, fmt.Errorf("%w: no phonemes extracted", ErrExtraction)
	}

	events := make([]timeline.PhonemeEvent, len(doc.MouthCues))
	for i, cue := range doc.MouthCues {
		end := cue.Start + lastCueLength
		switch {
		case cue.End != nil:
			end = *cue.End
		case i+1 < len(doc.MouthCues):
			end = doc.MouthCues[i+1].Start
		}
		events[i] = timeline.PhonemeEvent{
			Symbol:     cue.Value,
			Start:      cue.Start,
			End:        end,
			Confidence: 1,
		}
	}

	md := map[string]string{"source": RhubarbID}
	for k, v := range metadata {
		md[k] = v
	}
	if doc.Metadata.SoundFile != "" {
		md["sound_file"] = doc.Metadata.SoundFile
	}

	tl, err := timeline.New(events, timeline.Meta{
		Duration:  doc.Metadata.Duration,
		SymbolSet: RhubarbID,
		Language:  "en",
		Metadata:  md,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return tl, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
