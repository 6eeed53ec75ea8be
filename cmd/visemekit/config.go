package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/config"
	"github.com/normanking/visemekit/internal/extract"
)

// ============== Config Commands ==============

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Initialize, view, and validate the visemekit configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new configuration file",
	Long: `Creates a configuration file at ~/.visemekit/config.yaml (or --config)
with default values. An existing file is not overwritten unless --force is
specified.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long:  `Loads and displays the current configuration from file and environment variables.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validates the current configuration and checks the configured extractor.`,
	RunE:  runConfigValidate,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration file created at: %s\n", path)
	fmt.Fprintln(w, "\nEnvironment variables override file values, for example:")
	fmt.Fprintln(w, "  VISEMEKIT_CACHE_BACKEND=sqlite")
	fmt.Fprintln(w, "  VISEMEKIT_ANIMATION_RATE=30")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "# Current Configuration")
	fmt.Fprintln(w)

	an := cfg.Animation
	fmt.Fprintln(w, "animation:")
	fmt.Fprintf(w, "  preset: %s\n", an.Preset)
	fmt.Fprintf(w, "  start_frame: %d\n", an.StartFrame)
	fmt.Fprintf(w, "  rate: %g\n", an.Rate)
	fmt.Fprintf(w, "  easing: {enabled: %t, length: %d, curve: %s}\n", an.Easing.Enabled, an.Easing.Length, an.Easing.Curve)
	fmt.Fprintf(w, "  blend_range: %g\n", an.BlendRange)
	fmt.Fprintf(w, "  auto_create: %t\n", an.AutoCreate)
	fmt.Fprintf(w, "  track_name: %s\n", an.TrackName)
	fmt.Fprintf(w, "  merge_threshold: %g\n", an.MergeThreshold)
	fmt.Fprintf(w, "  min_hold_frames: %d\n", an.MinHoldFrames)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "cache:")
	fmt.Fprintf(w, "  backend: %s\n", cfg.Cache.Backend)
	fmt.Fprintf(w, "  dir: %s\n", cfg.Cache.Dir)
	fmt.Fprintf(w, "  redis: {addr: %s, db: %d, prefix: %s}\n", cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
	if cfg.Cache.Redis.Password != "" {
		fmt.Fprintln(w, "  redis password: ******** (set)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "extractor:")
	fmt.Fprintf(w, "  name: %s\n", cfg.Extractor.Name)
	fmt.Fprintf(w, "  rhubarb: {binary: %s, recognizer: %s, extended_shapes: %s, timeout: %s}\n",
		cfg.Extractor.Rhubarb.Binary, cfg.Extractor.Rhubarb.Recognizer,
		cfg.Extractor.Rhubarb.ExtendedShapes, cfg.Extractor.Rhubarb.Timeout)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "presets:\n  dir: %s\n", cfg.Presets.Dir)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "log:")
	fmt.Fprintf(w, "  level: %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "  dir: %s\n", cfg.Log.Dir)
	fmt.Fprintf(w, "  console: %t\n", cfg.Log.Console)
	fmt.Fprintf(w, "  file: %t\n", cfg.Log.File)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "metrics:\n  addr: %s\n", cfg.Metrics.Addr)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(w, "Configuration is invalid: %v\n", err)
		return err
	}
	fmt.Fprintln(w, "Configuration is valid")

	x, err := extract.New(cfg.Extractor.Name, cfg.Extractor.Rhubarb)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := x.Health(ctx); err != nil {
		fmt.Fprintf(w, "Extractor %s is unavailable: %v\n", x.ID(), err)
		fmt.Fprintln(w, "   generate --timeline still works without it.")
		return nil
	}
	fmt.Fprintf(w, "Extractor %s is available (%s)\n", x.ID(), extract.ConfigString(x.Config()))
	return nil
}
