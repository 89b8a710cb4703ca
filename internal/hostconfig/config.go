// Package hostconfig loads the YAML layout of an effect host: stream
// format, preset location, control listener and the effect order of each
// direction.
package hostconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/settings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("hostconfig: invalid config")

// Config is the host file.
type Config struct {
	SampleRate float64 `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
	BitDepth   int     `yaml:"bit_depth"`
	PresetDir  string  `yaml:"preset_dir"`
	Listen     string  `yaml:"listen"`
	LogLevel   string  `yaml:"log_level"`

	Input  ChainConfig `yaml:"input"`
	Output ChainConfig `yaml:"output"`
}

// ChainConfig describes the chain of one direction.
type ChainConfig struct {
	Effects  []string `yaml:"effects"`
	Metering bool     `yaml:"metering"`
	Spectrum bool     `yaml:"spectrum"`
}

// Default returns the built-in layout: an output chain of every effect and
// an empty input chain.
func Default() Config {
	pc := core.DefaultProcessorConfig()

	return Config{
		SampleRate: pc.SampleRate,
		BlockSize:  pc.BlockSize,
		BitDepth:   16,
		PresetDir:  "presets",
		Listen:     "127.0.0.1:8080",
		LogLevel:   "info",
		Output: ChainConfig{
			Effects:  []string{settings.Equalizer, settings.Filter, settings.Limiter},
			Metering: true,
		},
	}
}

// Load reads and validates the file at path. Keys missing from the file
// keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: %w", err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes and validates a host file. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("hostconfig: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the stream format, the bit depth, the log level and the
// effect lists.
func (c Config) Validate() error {
	format := core.ProcessorConfig{SampleRate: c.SampleRate, BlockSize: c.BlockSize}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	switch c.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d", ErrInvalid, c.BitDepth)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	for _, dir := range settings.Directions {
		seen := map[string]bool{}

		for _, name := range c.Chain(dir).Effects {
			if _, ok := settings.Schema(name); !ok {
				return fmt.Errorf("%w: %s: unknown effect %q", ErrInvalid, dir, name)
			}

			if seen[name] {
				return fmt.Errorf("%w: %s: effect %q listed twice", ErrInvalid, dir, name)
			}

			seen[name] = true
		}
	}

	return nil
}

// Processor returns the stream format. Non-positive fields fall back to
// the defaults.
func (c Config) Processor() core.ProcessorConfig {
	return core.ApplyProcessorOptions(
		core.WithSampleRate(c.SampleRate),
		core.WithBlockSize(c.BlockSize),
	)
}

// Chain returns the chain layout of dir.
func (c Config) Chain(dir settings.Direction) ChainConfig {
	if dir == settings.Input {
		return c.Input
	}

	return c.Output
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}

	return l, nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("hostconfig: encode: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("hostconfig: encode: %w", err)
	}

	return buf.Bytes(), nil
}
