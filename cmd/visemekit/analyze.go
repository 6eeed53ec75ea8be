package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/analysis"
	"github.com/normanking/visemekit/internal/extract"
	"github.com/normanking/visemekit/internal/timeline"
)

// ============== Analyze Command ==============

var analyzeOut string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <audio>",
	Short: "Extract a phoneme timeline from an audio file",
	Long: `Run the configured extractor on an audio file. Results are cached by
audio content, extractor and extractor settings, so a second run on the same
file is served from the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write the timeline document to this path")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := a.analyze(ctx, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	source := "extracted"
	if out.CacheHit {
		source = "cache"
	}
	fmt.Fprintf(w, "Key:      %s\n", out.Key.Short())
	fmt.Fprintf(w, "Source:   %s\n", source)
	fmt.Fprintf(w, "Events:   %d\n", out.Timeline.Len())
	fmt.Fprintf(w, "Duration: %.3fs\n", out.Timeline.Duration())
	if !out.Stored {
		fmt.Fprintln(w, "Warning:  timeline was not cached")
	}

	if analyzeOut != "" {
		if err := writeTimeline(analyzeOut, out.Timeline); err != nil {
			return err
		}
		fmt.Fprintf(w, "Written:  %s\n", analyzeOut)
	}
	return nil
}

// analyze runs one analysis job and waits for it.
func (a *app) analyze(ctx context.Context, path string) (analysis.Outcome, error) {
	store, err := a.openCache()
	if err != nil {
		return analysis.Outcome{}, err
	}
	defer store.Close()

	x, err := extract.New(a.cfg.Extractor.Name, a.cfg.Extractor.Rhubarb)
	if err != nil {
		return analysis.Outcome{}, err
	}

	analyzer := analysis.New(store, x, a.events, a.log.Component("analysis"))
	return analyzer.Start(ctx, path, nil).Wait()
}

func writeTimeline(path string, tl *timeline.Timeline) error {
	data, err := json.MarshalIndent(tl, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}
