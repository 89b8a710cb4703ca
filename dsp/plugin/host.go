package plugin

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used on the control path.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

type instanceRef struct {
	inst Instance
	rate float64
}

// Host owns the engine instance of one effect stage.
//
// Configure, Bind* and Close run on the control path and are serialized by
// an internal mutex. Run is the audio path: it takes no lock and never
// allocates. Configure replaces the instance; callers must not run the old
// instance concurrently with Configure (effectchain.Chain holds its lock for
// both).
type Host struct {
	uri    string
	loader Loader
	logger *slog.Logger
	found  bool

	mu       sync.Mutex
	inst     atomic.Pointer[instanceRef]
	block    atomic.Int64
	bindings atomic.Pointer[[]*binding]

	recreations atomic.Int64
}

// NewHost resolves uri through loader. A missing engine is logged once and
// leaves the host permanently disabled.
func NewHost(uri string, loader Loader, opts ...Option) *Host {
	h := &Host{
		uri:    uri,
		loader: loader,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	empty := []*binding{}
	h.bindings.Store(&empty)

	h.found = loader != nil && loader.Has(uri)
	if !h.found {
		h.logger.Debug(uri + " is not installed")
	}

	return h
}

// URI returns the engine identifier.
func (h *Host) URI() string { return h.uri }

// Available reports whether the engine was found.
func (h *Host) Available() bool { return h.found }

// Ready reports whether an instance exists for the configured rate.
func (h *Host) Ready() bool { return h.inst.Load() != nil }

// BlockSize returns the configured block size in frames.
func (h *Host) BlockSize() int { return int(h.block.Load()) }

// SampleRate returns the rate of the current instance, or 0.
func (h *Host) SampleRate() float64 {
	if ref := h.inst.Load(); ref != nil {
		return ref.rate
	}

	return 0
}

// Recreations counts instances replaced because the sample rate changed.
// The first instantiation is not counted.
func (h *Host) Recreations() int { return int(h.recreations.Load()) }

// Configure sets the block size and, when sampleRate differs from the
// current instance, destroys and recreates the instance. The new instance
// receives every bound value before it is published.
func (h *Host) Configure(sampleRate float64, blockSize int) error {
	if !h.found {
		return fmt.Errorf("%w: %s", ErrUnavailable, h.uri)
	}

	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("plugin: invalid sample rate %v", sampleRate)
	}

	if blockSize <= 0 {
		return fmt.Errorf("plugin: invalid block size %d", blockSize)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.block.Store(int64(blockSize))

	cur := h.inst.Load()
	if cur != nil && cur.rate == sampleRate {
		return nil
	}

	inst, err := h.loader.Instantiate(h.uri, sampleRate)
	if err != nil {
		h.inst.Store(nil)

		if cur != nil {
			closeInstance(cur.inst)
		}

		h.logger.Warn("plugin instantiation failed", "uri", h.uri, "rate", sampleRate, "error", err)

		return fmt.Errorf("%w: %s: %w", ErrNotReady, h.uri, err)
	}

	for _, b := range *h.bindings.Load() {
		b.dirty.Store(false)

		if err := inst.SetControl(b.port, b.value()); err != nil {
			h.logger.Warn("plugin control rejected", "uri", h.uri, "port", b.port, "error", err)
		}
	}

	h.inst.Store(&instanceRef{inst: inst, rate: sampleRate})

	if cur != nil {
		closeInstance(cur.inst)
		h.recreations.Add(1)
		h.logger.Debug("plugin instance recreated", "uri", h.uri, "from", cur.rate, "to", sampleRate)
	}

	return nil
}

// Run applies pending control values and processes one block. It returns
// false without touching the outputs when the host is disabled, has no
// instance, or the slices do not match the configured block size.
func (h *Host) Run(inL, inR, outL, outR []float32) bool {
	ref := h.inst.Load()
	if ref == nil {
		return false
	}

	n := int(h.block.Load())
	if len(inL) != n || len(inR) != n || len(outL) != n || len(outR) != n {
		return false
	}

	for _, b := range *h.bindings.Load() {
		if b.dirty.Swap(false) {
			_ = ref.inst.SetControl(b.port, b.value())
		}
	}

	ref.inst.Run(inL, inR, outL, outR)

	return true
}

// LatencySeconds returns the instance latency converted to seconds, or 0
// when no instance exists.
func (h *Host) LatencySeconds() float64 {
	ref := h.inst.Load()
	if ref == nil {
		return 0
	}

	return float64(ref.inst.Latency()) / ref.rate
}

// Ports returns the port table of the current instance, or nil.
func (h *Host) Ports() []Port {
	if ref := h.inst.Load(); ref != nil {
		return ref.inst.Ports()
	}

	return nil
}

// Close removes every binding observer and releases the instance.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range *h.bindings.Load() {
		b.cancel()
	}

	empty := []*binding{}
	h.bindings.Store(&empty)

	if ref := h.inst.Swap(nil); ref != nil {
		closeInstance(ref.inst)
	}
}

// PortValue is a helper for tests and diagnostics: it returns the value
// currently held in the binding slot of port.
func (h *Host) PortValue(port string) (float64, bool) {
	for _, b := range *h.bindings.Load() {
		if b.port == port {
			return b.value(), true
		}
	}

	return 0, false
}
