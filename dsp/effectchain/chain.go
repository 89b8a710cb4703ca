// Package effectchain runs an ordered list of effect stages over stereo
// blocks for one direction (input capture or output playback).
package effectchain

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/measure/level"
	"github.com/cwbudde/algo-fxhost/settings"
)

var (
	// ErrUnknownEffect is returned when no factory is registered for an effect name.
	ErrUnknownEffect = errors.New("effectchain: unknown effect")
	// ErrUnknownStage is returned when a chain has no stage of the given name.
	ErrUnknownStage = errors.New("effectchain: unknown stage")
	// ErrDuplicateStage is returned when a stage name is already in the chain.
	ErrDuplicateStage = errors.New("effectchain: duplicate stage")
)

// Tap observes the final output of a chain, e.g. a spectrum analyzer.
// Process is called on the audio path and must not block.
type Tap interface {
	Setup(sampleRate float64, blockSize int) error
	Process(left, right []float32)
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the control-path logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTap attaches t to the chain output.
func WithTap(t Tap) Option {
	return func(c *Chain) { c.tap = t }
}

// Chain owns the stages of one direction.
//
// Process holds the chain mutex for one block; structural changes and Setup
// take the same mutex, so a block never sees a chain mid-splice.
type Chain struct {
	dir    settings.Direction
	logger *slog.Logger
	tap    Tap

	mu         sync.Mutex
	stages     []*Stage
	sampleRate float64
	blockSize  int
	configured bool
	ping       [2][]float32
	pong       [2][]float32

	meter    *level.Meter
	metering atomic.Bool
}

// New returns an empty chain for dir.
func New(dir settings.Direction, opts ...Option) *Chain {
	c := &Chain{
		dir:    dir,
		logger: slog.Default(),
		meter:  level.NewMeter(1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Direction returns the direction the chain processes.
func (c *Chain) Direction() settings.Direction { return c.dir }

// Locker returns the lock that excludes Process. Holders must not call
// other Chain methods.
func (c *Chain) Locker() sync.Locker { return &c.mu }

// Setup configures every stage, the tap and the ping-pong buffers for the
// new format. Stages that fail stay in passthrough; their errors are joined
// into the result.
func (c *Chain) Setup(sampleRate float64, blockSize int) error {
	cfg := core.ProcessorConfig{SampleRate: sampleRate, BlockSize: blockSize}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("effectchain: setup: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for _, s := range c.stages {
		if err := s.Setup(sampleRate, blockSize); err != nil {
			c.logger.Warn("stage setup failed", "direction", c.dir, "stage", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("effectchain: stage %s: %w", s.Name(), err))
		}
	}

	if c.tap != nil {
		if err := c.tap.Setup(sampleRate, blockSize); err != nil {
			errs = append(errs, fmt.Errorf("effectchain: tap: %w", err))
		}
	}

	for ch := range 2 {
		c.ping[ch] = core.EnsureLen(c.ping[ch], blockSize)
		c.pong[ch] = core.EnsureLen(c.pong[ch], blockSize)
	}

	if c.sampleRate != sampleRate || c.blockSize != blockSize {
		c.logger.Debug("chain configured", "direction", c.dir, "rate", sampleRate, "block", blockSize)
	}

	c.sampleRate = sampleRate
	c.blockSize = blockSize
	c.configured = true

	return errors.Join(errs...)
}

// SampleRate returns the configured rate, 0 before Setup.
func (c *Chain) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sampleRate
}

// BlockSize returns the configured block size, 0 before Setup.
func (c *Chain) BlockSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockSize
}

// Process runs one stereo block through every stage in order. The inputs
// are not modified. Before Setup, or for a block whose length differs from
// the configured size, the input is copied to the output unchanged.
func (c *Chain) Process(inL, inR, outL, outR []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.blockSize
	if !c.configured || len(inL) != n || len(inR) != n || len(outL) != n || len(outR) != n {
		core.CopyStereo(outL, outR, inL, inR)
		return
	}

	srcL, srcR := c.ping[0], c.ping[1]
	dstL, dstR := c.pong[0], c.pong[1]

	core.CopyStereo(srcL, srcR, inL, inR)

	for _, s := range c.stages {
		s.Process(srcL, srcR, dstL, dstR)
		srcL, srcR, dstL, dstR = dstL, dstR, srcL, srcR
	}

	core.CopyStereo(outL, outR, srcL, srcR)

	if c.metering.Load() {
		c.meter.Notify(c.meter.Update(inL, inR, outL, outR))
	}

	if c.tap != nil {
		c.tap.Process(outL, outR)
	}
}

// SetMetering enables the chain input/output meter.
func (c *Chain) SetMetering(on bool) { c.metering.Store(on) }

// Levels returns the notification channel of the chain meter.
func (c *Chain) Levels() <-chan level.Levels { return c.meter.C() }

// LatestLevels returns the most recent chain reading.
func (c *Chain) LatestLevels() level.Levels { return c.meter.Latest() }

// LatencySeconds returns the sum of the stage latencies.
func (c *Chain) LatencySeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, s := range c.stages {
		total += s.LatencySeconds()
	}

	return total
}

// Append adds s at the end of the chain. When the chain is configured the
// stage is set up before it becomes visible to Process.
func (c *Chain) Append(s *Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index(s.Name()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name())
	}

	if c.configured {
		if err := s.Setup(c.sampleRate, c.blockSize); err != nil {
			c.logger.Warn("stage setup failed", "direction", c.dir, "stage", s.Name(), "error", err)
		}
	}

	c.stages = append(c.stages, s)

	return nil
}

// Remove takes the named stage out of the chain and closes it.
func (c *Chain) Remove(name string) error {
	c.mu.Lock()

	i := c.index(name)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	s := c.stages[i]
	c.stages = slices.Delete(c.stages, i, i+1)
	c.mu.Unlock()

	s.Close()

	return nil
}

// MoveUp swaps the named stage with its predecessor. Moving the first
// stage is a no-op.
func (c *Chain) MoveUp(name string) error {
	return c.move(name, -1)
}

// MoveDown swaps the named stage with its successor. Moving the last stage
// is a no-op.
func (c *Chain) MoveDown(name string) error {
	return c.move(name, 1)
}

func (c *Chain) move(name string, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	j := i + delta
	if j < 0 || j >= len(c.stages) {
		return nil
	}

	c.stages[i], c.stages[j] = c.stages[j], c.stages[i]

	return nil
}

// Reorder arranges the stages so those named in order come first, in that
// order. Names without a stage are skipped; stages not named keep their
// relative order after the named ones.
func (c *Chain) Reorder(order []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]*Stage, 0, len(c.stages))
	used := make(map[string]bool, len(order))

	for _, name := range order {
		if used[name] {
			continue
		}

		i := c.index(name)
		if i < 0 {
			c.logger.Debug("reorder skips missing stage", "direction", c.dir, "stage", name)
			continue
		}

		used[name] = true
		next = append(next, c.stages[i])
	}

	for _, s := range c.stages {
		if !used[s.Name()] {
			next = append(next, s)
		}
	}

	c.stages = next
}

// Names returns the stage names in processing order.
func (c *Chain) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}

	return names
}

// Stage returns the named stage.
func (c *Chain) Stage(name string) (*Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	return c.stages[i], nil
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.stages)
}

// Close closes every stage and empties the chain.
func (c *Chain) Close() {
	c.mu.Lock()
	stages := c.stages
	c.stages = nil
	c.configured = false
	c.mu.Unlock()

	for _, s := range stages {
		s.Close()
	}
}

func (c *Chain) index(name string) int {
	return slices.IndexFunc(c.stages, func(s *Stage) bool { return s.Name() == name })
}
