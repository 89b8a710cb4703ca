package effectchain

import (
	"sync"

	"github.com/cwbudde/algo-fxhost/dsp/plugin"
)

// affineInstance computes out = in*mul + add per sample.
type affineInstance struct {
	mul, add float64
	latency  int
	runs     int
}

func (a *affineInstance) Ports() []plugin.Port {
	return []plugin.Port{{Name: "mul", Default: 1}, {Name: "add"}}
}

func (a *affineInstance) SetControl(port string, v float64) error {
	switch port {
	case "mul":
		a.mul = v
	case "add":
		a.add = v
	default:
		return plugin.ErrUnknownPort
	}

	return nil
}

func (a *affineInstance) Run(inL, inR, outL, outR []float32) {
	a.runs++

	m, b := float32(a.mul), float32(a.add)
	for i := range inL {
		outL[i] = inL[i]*m + b
		outR[i] = inR[i]*m + b
	}
}

func (a *affineInstance) Latency() int { return a.latency }

type affineParams struct {
	mul, add float64
	latency  int
}

// stubLoader creates affineInstances and counts instantiations per URI.
type stubLoader struct {
	mu     sync.Mutex
	params map[string]affineParams
	counts map[string]int
}

func newStubLoader(params map[string]affineParams) *stubLoader {
	return &stubLoader{params: params, counts: map[string]int{}}
}

func (l *stubLoader) Has(uri string) bool {
	_, ok := l.params[uri]
	return ok
}

func (l *stubLoader) Instantiate(uri string, _ float64) (plugin.Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.params[uri]
	if !ok {
		return nil, plugin.ErrUnavailable
	}

	l.counts[uri]++

	return &affineInstance{mul: p.mul, add: p.add, latency: p.latency}, nil
}

func (l *stubLoader) count(uri string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counts[uri]
}

// countingScaler is a sentinel Scaler that records every call.
type countingScaler struct {
	calls int
}

func (c *countingScaler) scale(buf []float32, g float32) {
	c.calls++

	for i := range buf {
		buf[i] *= g
	}
}

func newStubStage(name string, loader plugin.Loader, opts ...StageOption) *Stage {
	return NewStage(name, plugin.NewHost("urn:test:"+name, loader), opts...)
}

// recordingTap keeps the last block it saw.
type recordingTap struct {
	rate  float64
	block int
	left  []float32
	calls int
}

func (r *recordingTap) Setup(rate float64, block int) error {
	r.rate, r.block = rate, block
	r.left = make([]float32, block)

	return nil
}

func (r *recordingTap) Process(left, _ []float32) {
	r.calls++
	copy(r.left, left)
}
