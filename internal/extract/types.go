// Package extract provides the collaborators that turn audio into phoneme
// timelines. Extraction itself happens in external tools; this package only
// runs them and decodes their output.
package extract

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/normanking/visemekit/internal/timeline"
)

// Common errors
var (
	ErrExtraction   = errors.New("phoneme extraction failed")
	ErrToolNotFound = errors.New("extraction tool not found")
	ErrNoInput      = errors.New("input file not found")
)

// Extractor produces a timeline from an audio file.
type Extractor interface {
	// ID identifies the extractor in cache keys (e.g. "rhubarb").
	ID() string

	// Config returns every setting that changes the output. It is folded
	// into cache keys.
	Config() map[string]string

	// Health reports whether the extractor can run.
	Health(ctx context.Context) error

	// Extract runs the extraction.
	Extract(ctx context.Context, audioPath string) (*timeline.Timeline, error)
}

// ConfigString renders an extractor config deterministically for logs.
func ConfigString(cfg map[string]string) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(cfg[k])
	}
	return b.String()
}
