package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/bus"
	"github.com/normanking/visemekit/internal/engine"
	"github.com/normanking/visemekit/internal/metrics"
	"github.com/normanking/visemekit/internal/preset"
	"github.com/normanking/visemekit/internal/scene"
	"github.com/normanking/visemekit/internal/session"
	"github.com/normanking/visemekit/internal/target"
)

// ============== Watch Command ==============

var (
	watchSessions []string
	watchAddr     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch presets and serve metrics",
	Long: `Watch the preset directory, reload presets when their files change and
serve Prometheus metrics. Sessions passed with --session are regenerated
whenever the preset they were generated with changes.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchSessions, "session", nil, "session document to regenerate on preset changes")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "metrics listen address (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := os.MkdirAll(a.presets.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create preset dir: %w", err)
	}
	w, err := preset.NewWatcher(a.presets)
	if err != nil {
		return fmt.Errorf("failed to watch presets: %w", err)
	}
	defer w.Close()

	w.OnChange(func(name string) {
		metrics.PresetReloads.Inc()
		a.events.Publish(bus.NewEvent(bus.EventTypePresetChanged, map[string]any{"preset": name}))
	})

	a.events.Subscribe(bus.EventTypePresetChanged, func(e bus.Event) {
		name, _ := e.Data["preset"].(string)
		if _, err := a.presets.Get(name); err != nil && !errors.Is(err, preset.ErrNotFound) {
			a.log.Warn("watch", "Changed preset does not load", map[string]interface{}{"preset": name, "error": err.Error()})
			return
		}
		for _, path := range watchSessions {
			if err := regenerateSession(a, path, name); err != nil {
				a.log.Error("watch", "Session not regenerated", err, map[string]interface{}{"session": path, "preset": name})
			}
		}
	})

	addr := a.cfg.Metrics.Addr
	if watchAddr != "" {
		addr = watchAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	a.log.Info("watch", "Watching presets", map[string]interface{}{"dir": a.presets.Dir(), "metrics": addr, "sessions": len(watchSessions)})
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, metrics on %s (Ctrl+C to stop)\n", a.presets.Dir(), addr)
	if path := a.log.GetLogPath(); path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Logging to %s\n", path)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// regenerateSession rewrites the session at path when it was generated with
// presetName. The track keeps its id and name.
func regenerateSession(a *app, path, presetName string) error {
	doc, err := session.Load(path)
	if err != nil {
		return err
	}
	if doc.Preset != presetName || doc.Track == nil || len(doc.Track.Keyframes) == 0 {
		return nil
	}

	mapping, err := a.presets.Get(presetName)
	if err != nil {
		return err
	}
	opts, err := doc.Settings.Options()
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
	res, _, err := eng.Generate(doc.Timeline, mapping, tr, doc.Targets, opts)
	if err != nil {
		return err
	}
	metrics.Generations.WithLabelValues("ok").Inc()
	metrics.BindingsCreated.Add(float64(res.BindingCount))

	baked := len(doc.Frames) > 0
	next := session.New(tr, doc.Timeline, presetName, doc.Targets, opts, res)
	if baked {
		next.Frames = sc.Bake(tr, res.FrameRange.Start, res.FrameRange.End)
	}
	if err := session.Save(path, next); err != nil {
		return err
	}

	a.events.Publish(bus.NewEvent(bus.EventTypeGenerated, map[string]any{
		"track":    res.TrackID,
		"session":  path,
		"bindings": res.BindingCount,
	}))
	a.log.Info("watch", "Session regenerated", map[string]interface{}{"session": path, "preset": presetName, "keyframes": res.KeyframeCount})
	return nil
}
