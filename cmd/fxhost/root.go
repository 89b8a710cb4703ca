package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-fxhost/internal/engine"
	"github.com/cwbudde/algo-fxhost/internal/hostconfig"
)

var version = "0.1.0"

// app carries the persistent flags shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	presetDir  string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fxhost",
		Short: "Stereo effect-chain host",
		Long: `fxhost runs chains of equalizer, filter and limiter stages over
stereo audio, per direction (input and output), with named presets.

Examples:
  fxhost render --in voice.wav --out voice-eq.wav --preset podcast
  fxhost serve --listen 127.0.0.1:8080
  fxhost preset list output`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Host YAML file (default: built-in layout)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.presetDir, "preset-dir", "", "Preset directory override")

	root.AddCommand(
		newRenderCmd(a),
		newServeCmd(a),
		newPresetCmd(a),
		newEffectsCmd(a),
		newConfigCmd(a),
	)

	return root
}

// config loads the host file, or the defaults, and applies flag overrides.
func (a *app) config() (hostconfig.Config, error) {
	cfg := hostconfig.Default()

	if a.configPath != "" {
		var err error
		if cfg, err = hostconfig.Load(a.configPath); err != nil {
			return hostconfig.Config{}, err
		}
	}

	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	if a.presetDir != "" {
		cfg.PresetDir = a.presetDir
	}

	if err := cfg.Validate(); err != nil {
		return hostconfig.Config{}, err
	}

	return cfg, nil
}

func newLogger(w io.Writer, cfg hostconfig.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// engine builds an engine from the effective config, logging to the
// command's error stream.
func (a *app) engine(cmd *cobra.Command) (*engine.Engine, hostconfig.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, hostconfig.Config{}, err
	}

	e, err := engine.New(cfg, engine.WithLogger(newLogger(cmd.ErrOrStderr(), cfg)))
	if err != nil {
		return nil, hostconfig.Config{}, fmt.Errorf("build engine: %w", err)
	}

	return e, cfg, nil
}
