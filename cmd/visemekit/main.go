package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/normanking/visemekit/internal/bus"
	"github.com/normanking/visemekit/internal/cache"
	"github.com/normanking/visemekit/internal/config"
	"github.com/normanking/visemekit/internal/logging"
	"github.com/normanking/visemekit/internal/preset"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "visemekit",
	Short: "Lip-sync animation from phoneme timelines",
	Long: `visemekit turns phoneme timelines into lip-sync animation: a single
controller channel holding the active mouth-shape class, plus one binding
per visual target that reads it.

Configuration:
  1. --config flag (explicit path)
  2. $HOME/.visemekit/config.yaml
  3. ./config.yaml (current directory)

Environment Variables:
  VISEMEKIT_CACHE_BACKEND      - file, sqlite or redis
  VISEMEKIT_CACHE_REDIS_ADDR   - Redis address for the redis backend
  VISEMEKIT_EXTRACTOR_NAME     - rhubarb or document
  VISEMEKIT_LOG_LEVEL          - debug, info, warn, error
  A .env file in the working directory is loaded first.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.visemekit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on the console")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)

	// Cache subcommands
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	// Presets subcommands
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsShowCmd)
	presetsCmd.AddCommand(presetsExportCmd)
	presetsCmd.AddCommand(presetsImportCmd)

	// Config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	events  *bus.EventBus
	presets *preset.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := cfg.Log.Logging()
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start logging: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		events:  bus.NewEventBus(),
		presets: preset.NewManager(cfg.Presets.Dir, log.Component("presets")),
	}, nil
}

func (a *app) openCache() (cache.Store, error) {
	store, err := cache.Open(a.cfg.Cache.CacheOptions(), a.log.Component("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", a.cfg.Cache.Backend, err)
	}
	return store, nil
}

func (a *app) Close() {
	a.events.Wait()
	_ = a.log.Close()
}

// reportProblems prints the warnings and errors logged while the command
// ran, since console logging is often off.
func (a *app) reportProblems(w io.Writer) {
	n := 0
	for _, e := range a.log.GetHistory(0) {
		if e.Level != string(logging.LevelWarn) && e.Level != string(logging.LevelError) {
			continue
		}
		if e.Data != "" {
			fmt.Fprintf(w, "Warning:    %s (%s)\n", e.Message, e.Data)
		} else {
			fmt.Fprintf(w, "Warning:    %s\n", e.Message)
		}
		n++
	}
	if n > 0 && a.log.GetLogPath() != "" {
		fmt.Fprintf(w, "Log file:   %s\n", a.log.GetLogPath())
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
