// Package plugin hosts opaque DSP engines behind a small load/configure/run
// contract and links their control ports to settings keys.
//
// The engines themselves are supplied through a Loader. A Host whose engine
// cannot be found stays disabled for its whole lifetime and reports
// passthrough to its caller; nothing on the audio path ever returns an error.
package plugin

import "errors"

var (
	// ErrUnavailable is returned when the engine is not installed.
	ErrUnavailable = errors.New("plugin: engine not installed")
	// ErrNotReady is returned when no instance exists for the current rate.
	ErrNotReady = errors.New("plugin: instance not ready")
	// ErrUnknownPort is returned by instances for control ports they do not have.
	ErrUnknownPort = errors.New("plugin: unknown port")
)

// Port describes one control input of an engine. Labels is set for
// enumerated ports; the control value is then the label index.
type Port struct {
	Name     string
	Min, Max float64
	Default  float64
	Labels   []string
}

// Instance is one running engine bound to a sample rate.
//
// Run and SetControl are only called from one goroutine at a time. Latency
// may be called concurrently with Run.
type Instance interface {
	Ports() []Port
	SetControl(port string, v float64) error
	// Run processes exactly one block. All four slices have the same length.
	Run(inL, inR, outL, outR []float32)
	// Latency returns the algorithmic delay in frames.
	Latency() int
}

// Loader resolves engine identifiers.
type Loader interface {
	Has(uri string) bool
	Instantiate(uri string, sampleRate float64) (Instance, error)
}

// closer is implemented by instances holding resources beyond memory.
type closer interface {
	Close() error
}

func closeInstance(inst Instance) {
	if c, ok := inst.(closer); ok {
		_ = c.Close()
	}
}
